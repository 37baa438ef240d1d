// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package palette assigns rendering colors to participants.
//
// Colors are derived deterministically from the participant ID, so
// every client in a room renders the same participant in the same
// color without any color negotiation on the wire. The server never
// transmits colors.
package palette

import (
	"github.com/zeebo/blake3"

	"github.com/tandem-editor/tandem/lib/ref"
)

// Color is a CSS-style hex color string (e.g., "#e06c75").
type Color string

// colors is the fixed cursor palette. Hues are spaced for legibility
// against both light and dark editor themes; adjacent entries contrast
// strongly so consecutive hash buckets don't look alike.
var colors = [...]Color{
	"#e06c75", // red
	"#61afef", // blue
	"#98c379", // green
	"#c678dd", // purple
	"#e5c07b", // amber
	"#56b6c2", // cyan
	"#d19a66", // orange
	"#ef596f", // rose
	"#52adf2", // sky
	"#89ca78", // lime
	"#d55fde", // magenta
	"#2bbac5", // teal
}

// systemColor is used for system chat messages, which carry no author.
const systemColor = Color("#7f848e")

// ColorFor returns the deterministic color for a participant. The
// zero ParticipantID (system author) maps to a neutral gray.
func ColorFor(id ref.ParticipantID) Color {
	if id.IsZero() {
		return systemColor
	}
	digest := blake3.Sum256([]byte(id.String()))
	// Two digest bytes give a uniform index; one byte would bias
	// palettes whose length doesn't divide 256.
	index := (uint32(digest[0])<<8 | uint32(digest[1])) % uint32(len(colors))
	return colors[index]
}

// System returns the color used for system messages.
func System() Color { return systemColor }
