// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package collab is the client-side engine for Tandem real-time
// collaboration sessions: one persistent connection to a collaboration
// server, one optional active room, and the shared session state that
// editor UI reads reactively.
//
// The package provides one core type. [Engine] owns the connection
// state machine (connect, handshake, reconnect with bounded backoff),
// the room registry (create, join, leave, shared-file list), the
// presence tracker (cursors, selections, activity staleness), the
// permission and invite service, the chat channel, call-control
// signaling, and the follow coordinator.
//
// All session state lives in the Engine behind a single mutex — the Go
// rendering of the editor's single-threaded reactive model. Reads go
// through snapshot accessors (Participants, Room, Messages, ...) that
// return copies; consumers never hold references into engine state.
// Register OnChange, OnStateChange, and OnScroll callbacks to observe
// updates instead of polling. Callbacks run on the engine's event
// goroutine after the triggering mutation commits; they must not block
// for long and must not call engine operations synchronously.
//
// Error taxonomy: transport and handshake failures surface as
// [*ConnectionError] after internal bounded retries; server-reported
// room failures (not found, full, invalid invite) surface as
// [*RoomError] and are never retried; statically disallowed operations
// fail fast with [*PermissionError] or [*ValidationError] before any
// network round-trip.
package collab
