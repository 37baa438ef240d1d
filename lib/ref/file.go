// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// FileID identifies a file shared within a room. It is a
// workspace-relative path chosen by the host's editor; the engine
// treats it as opaque. Unlike room and participant IDs there is no
// structural validation — any non-empty string the server relays is
// accepted, and cursor or selection events for files outside the
// shared list are still tracked (the file list and presence arrive on
// independent channels with no ordering guarantee between them).
type FileID string

// IsZero reports whether the FileID is empty.
func (f FileID) IsZero() bool { return f == "" }

// String returns the path form of the file ID.
func (f FileID) String() string { return string(f) }
