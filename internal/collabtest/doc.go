// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package collabtest provides an in-memory collaboration server for
// tests and local development. It speaks the full wire protocol over
// in-process pipes or real WebSockets, mints and validates invite
// tokens, and applies the same room/permission rules the production
// server does — enough fidelity that the engine cannot tell the
// difference.
package collabtest
