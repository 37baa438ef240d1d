// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"errors"
	"fmt"

	"github.com/tandem-editor/tandem/protocol"
)

// Sentinel errors for statically detectable misuse. Checked with
// errors.Is.
var (
	// ErrNotConnected is returned by operations that need a live
	// connection while the engine is disconnected, connecting, or
	// reconnecting. Callers retry after the state machine settles
	// rather than racing a half-open connection.
	ErrNotConnected = errors.New("collab: not connected")

	// ErrBusy is returned by Connect while a connect or reconnect
	// attempt is already in progress.
	ErrBusy = errors.New("collab: connection attempt already in progress")

	// ErrNoRoom is returned by room-scoped operations outside a room.
	ErrNoRoom = errors.New("collab: not in a room")

	// ErrInRoom is returned by CreateRoom and JoinRoom while already
	// in a room. Leave first.
	ErrInRoom = errors.New("collab: already in a room")

	// ErrCanceled is returned to a waiter whose in-flight request was
	// invalidated by LeaveRoom or a connection teardown. The late
	// server reply, if it ever arrives, is discarded.
	ErrCanceled = errors.New("collab: request canceled")
)

// ConnectionError reports a failed connect or reconnect after the
// bounded retry budget is exhausted.
type ConnectionError struct {
	// Attempts is the number of dial attempts made.
	Attempts int
	// Err is the failure from the final attempt.
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("collab: connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RoomError is a structured failure reported by the server for a room
// operation. These are user-actionable and never retried.
//
//	var roomErr *RoomError
//	if errors.As(err, &roomErr) {
//	    if roomErr.Code == protocol.CodeRoomFull { ... }
//	}
type RoomError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *RoomError) Error() string {
	return fmt.Sprintf("collab: %s: %s", e.Code, e.Message)
}

// IsRoomError checks whether err is a *RoomError with the given code.
func IsRoomError(err error, code protocol.ErrorCode) bool {
	var roomErr *RoomError
	if errors.As(err, &roomErr) {
		return roomErr.Code == code
	}
	return false
}

// PermissionError reports an operation rejected locally because the
// local user's effective permission is statically known to be
// insufficient. No network round-trip is made.
type PermissionError struct {
	// Op names the rejected operation.
	Op string
	// Have is the local user's effective permission.
	Have protocol.Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("collab: %s not permitted with %s permission", e.Op, e.Have)
}

// ValidationError reports locally rejected input (empty chat text,
// empty display name). No network round-trip is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("collab: invalid %s: %s", e.Field, e.Reason)
}

// errorFromReply maps a server error payload to the client taxonomy.
func errorFromReply(payload protocol.ErrorPayload) error {
	return &RoomError{Code: payload.Code, Message: payload.Message}
}
