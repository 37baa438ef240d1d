// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collabtest

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
)

// inviteClaims is the signed content of an invite token: the target
// room and the permission the invite grants. Clients treat the token
// as opaque; only the server reads it back.
type inviteClaims struct {
	jwt.RegisteredClaims
	Room       string `json:"room"`
	Permission string `json:"perm"`
}

// mintInvite signs a permission-scoped invite token for a room.
func (s *Server) mintInvite(roomID ref.RoomID, permission protocol.Permission) (string, error) {
	now := time.Now()
	claims := inviteClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.inviteTTL)),
		},
		Room:       roomID.String(),
		Permission: string(permission),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.inviteSecret)
	if err != nil {
		return "", fmt.Errorf("signing invite: %w", err)
	}
	return token, nil
}

// redeemInvite validates a token's signature and expiry and returns
// what it grants. Tampered, expired, or malformed tokens all fail the
// same way: the caller reports invalid_invite without detail.
func (s *Server) redeemInvite(token string) (ref.RoomID, protocol.Permission, error) {
	var claims inviteClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.inviteSecret, nil
	})
	if err != nil {
		return ref.RoomID{}, "", fmt.Errorf("invalid invite token: %w", err)
	}
	if !parsed.Valid {
		return ref.RoomID{}, "", fmt.Errorf("invalid invite token")
	}
	roomID, err := ref.ParseRoomID(claims.Room)
	if err != nil {
		return ref.RoomID{}, "", fmt.Errorf("invalid invite token: %w", err)
	}
	permission := protocol.Permission(claims.Permission)
	if !permission.Invitable() {
		return ref.RoomID{}, "", fmt.Errorf("invalid invite permission %q", claims.Permission)
	}
	return roomID, permission, nil
}
