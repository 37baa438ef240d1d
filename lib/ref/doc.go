// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references for
// Tandem collaboration entities: rooms, participants, and shared files.
//
// Room and participant IDs are server-assigned opaque identifiers. Client
// code never constructs them directly — they arrive from the collaboration
// server in welcome, room_created, and room_joined payloads and are parsed
// into these types at the protocol boundary. All constructors validate
// their inputs; once constructed, a ref is immutable.
//
// Wire serialization (CBOR and JSON) uses the raw string form via
// encoding.TextMarshaler and encoding.TextUnmarshaler.
package ref
