// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// participantPrefix is the sigil on every server-assigned participant
// identifier (e.g., "user_c03d9a21").
const participantPrefix = "user_"

// ParticipantID is a validated participant identifier.
//
// Participant IDs are assigned by the collaboration server during the
// connection handshake and are stable for the life of the session. The
// same ID identifies the participant across membership, presence, chat,
// permission, and call-state events, so all of those channels annotate
// the same participant record.
//
// ParticipantID is an immutable value type. The zero value is not
// valid; use IsZero to check.
type ParticipantID struct {
	id string
}

// ParseParticipantID validates and wraps a raw participant ID string.
// Returns an error if the string is empty, lacks the "user_" prefix,
// has an empty opaque part, or contains whitespace.
func ParseParticipantID(raw string) (ParticipantID, error) {
	if raw == "" {
		return ParticipantID{}, fmt.Errorf("empty participant ID")
	}
	if !strings.HasPrefix(raw, participantPrefix) {
		return ParticipantID{}, fmt.Errorf("participant ID must start with %q: %q", participantPrefix, raw)
	}
	if len(raw) == len(participantPrefix) {
		return ParticipantID{}, fmt.Errorf("participant ID has empty opaque part: %q", raw)
	}
	if strings.ContainsAny(raw, " \t\n") {
		return ParticipantID{}, fmt.Errorf("participant ID contains whitespace: %q", raw)
	}
	return ParticipantID{id: raw}, nil
}

// String returns the full participant ID string (e.g., "user_c03d9a21").
func (p ParticipantID) String() string { return p.id }

// IsZero reports whether the ParticipantID is the zero value.
func (p ParticipantID) IsZero() bool { return p.id == "" }

// MarshalText implements encoding.TextMarshaler. Returns an error for
// the zero value.
func (p ParticipantID) MarshalText() ([]byte, error) {
	if p.id == "" {
		return nil, fmt.Errorf("cannot marshal zero ParticipantID")
	}
	return []byte(p.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value (system chat messages carry no author).
func (p *ParticipantID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*p = ParticipantID{}
		return nil
	}
	parsed, err := ParseParticipantID(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
