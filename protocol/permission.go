// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Permission is a participant's capability level within a room.
//
// The server is the sole source of truth for permissions: the client
// applies permission_changed events as delivered and never upgrades its
// own level locally. Invite tokens are scoped to editor or viewer —
// ownership cannot be delegated via invite.
type Permission string

const (
	// PermissionOwner can edit, manage permissions, mint invites, and
	// share files. Exactly one participant per room holds it: the
	// creator, until the server transfers it (e.g., on host departure).
	PermissionOwner Permission = "owner"

	// PermissionEditor can edit shared files and update the file list.
	PermissionEditor Permission = "editor"

	// PermissionViewer can observe, chat, and join calls, but not edit.
	PermissionViewer Permission = "viewer"
)

// Valid reports whether the permission is one of the three known
// levels. Events carrying unknown levels are rejected at the protocol
// boundary rather than stored.
func (p Permission) Valid() bool {
	switch p {
	case PermissionOwner, PermissionEditor, PermissionViewer:
		return true
	}
	return false
}

// Invitable reports whether the permission may be granted by an invite
// token.
func (p Permission) Invitable() bool {
	return p == PermissionEditor || p == PermissionViewer
}

// CanEdit reports whether the permission allows modifying shared files.
func (p Permission) CanEdit() bool {
	return p == PermissionOwner || p == PermissionEditor
}

// CanManage reports whether the permission allows changing other
// participants' permissions and minting invites.
func (p Permission) CanManage() bool {
	return p == PermissionOwner
}

// ParsePermission validates a raw permission string.
func ParsePermission(raw string) (Permission, error) {
	permission := Permission(raw)
	if !permission.Valid() {
		return "", fmt.Errorf("protocol: unknown permission %q", raw)
	}
	return permission, nil
}
