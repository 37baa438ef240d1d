// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// roomPrefix is the sigil the collaboration server puts on every room
// identifier (e.g., "room_8f14e45f"). The prefix distinguishes raw room
// IDs from invite tokens in join requests, which accept either.
const roomPrefix = "room_"

// RoomID is a validated collaboration room identifier.
//
// Room IDs are server-assigned and opaque beyond the "room_" prefix.
// They come back from room creation and join responses and are parsed
// into this type at the boundary.
//
// RoomID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw room ID string. Returns an
// error if the string is empty, lacks the "room_" prefix, has an empty
// opaque part, or contains whitespace.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return RoomID{}, fmt.Errorf("empty room ID")
	}
	if !strings.HasPrefix(raw, roomPrefix) {
		return RoomID{}, fmt.Errorf("room ID must start with %q: %q", roomPrefix, raw)
	}
	if len(raw) == len(roomPrefix) {
		return RoomID{}, fmt.Errorf("room ID has empty opaque part: %q", raw)
	}
	if strings.ContainsAny(raw, " \t\n") {
		return RoomID{}, fmt.Errorf("room ID contains whitespace: %q", raw)
	}
	return RoomID{id: raw}, nil
}

// IsRoomID reports whether raw looks like a room ID rather than an
// invite token. Join requests accept either form; this distinguishes
// them without validating the full structure.
func IsRoomID(raw string) bool {
	return strings.HasPrefix(raw, roomPrefix)
}

// String returns the full room ID string (e.g., "room_8f14e45f").
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value (uninitialized).
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler. Returns an error for
// the zero value, since serializing an empty room ID would produce an
// identifier no server recognizes.
func (r RoomID) MarshalText() ([]byte, error) {
	if r.id == "" {
		return nil, fmt.Errorf("cannot marshal zero RoomID")
	}
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value (matching the omitempty convention for
// optional room references).
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
