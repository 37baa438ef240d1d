// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collabtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
	"github.com/tandem-editor/tandem/transport"
)

// writeTimeout bounds every outbound frame. A stuck client must not
// wedge the whole server.
const writeTimeout = 5 * time.Second

// Config holds server settings. The zero value works: defaults are
// filled by NewServer.
type Config struct {
	// Logger receives structured server logs. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// InviteSecret signs invite tokens. Defaults to a fixed test
	// secret.
	InviteSecret []byte

	// RoomCapacity caps room membership; joins past it fail with
	// room_full. Defaults to 8.
	RoomCapacity int

	// DefaultPermission is what a bare share-link join grants (room
	// policy). Defaults to editor.
	DefaultPermission protocol.Permission

	// InviteTTL bounds minted invite tokens. Defaults to 24h.
	InviteTTL time.Duration
}

// Server is the in-memory collaboration server.
type Server struct {
	logger            *slog.Logger
	inviteSecret      []byte
	roomCapacity      int
	defaultPermission protocol.Permission
	inviteTTL         time.Duration

	mu       sync.Mutex
	rooms    map[string]*room
	sessions map[ref.ParticipantID]*session
	nextUser int
	nextRoom int
}

// NewServer creates a Server with defaults filled.
func NewServer(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if len(config.InviteSecret) == 0 {
		config.InviteSecret = []byte("collabtest-invite-secret")
	}
	if config.RoomCapacity <= 0 {
		config.RoomCapacity = 8
	}
	if !config.DefaultPermission.Valid() {
		config.DefaultPermission = protocol.PermissionEditor
	}
	if config.InviteTTL <= 0 {
		config.InviteTTL = 24 * time.Hour
	}
	return &Server{
		logger:            config.Logger,
		inviteSecret:      config.InviteSecret,
		roomCapacity:      config.RoomCapacity,
		defaultPermission: config.DefaultPermission,
		inviteTTL:         config.InviteTTL,
		rooms:             make(map[string]*room),
		sessions:          make(map[ref.ParticipantID]*session),
	}
}

// room is one live collaboration room.
type room struct {
	id      ref.RoomID
	name    string
	hostID  ref.ParticipantID
	files   []ref.FileID
	members map[ref.ParticipantID]*session
	chatSeq int
}

// session is one connected client.
type session struct {
	conn        transport.Conn
	id          ref.ParticipantID
	displayName string
	permission  protocol.Permission
	room        *room
	presenceSeq uint64
}

// Serve runs the protocol loop for one connection until it fails or
// closes. It blocks; callers run it in a goroutine per connection.
func (s *Server) Serve(conn transport.Conn) {
	sess, err := s.handshake(conn)
	if err != nil {
		s.logger.Debug("handshake failed", "error", err)
		conn.Close()
		return
	}
	defer s.drop(sess)

	for {
		envelope, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		s.dispatch(sess, envelope)
	}
}

// handshake consumes the hello and answers with a welcome carrying the
// participant identity (minted fresh, or resumed from a previous
// connection when the hello asks for it).
func (s *Server) handshake(conn transport.Conn) (*session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	envelope, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if envelope.Type != protocol.TypeHello {
		return nil, fmt.Errorf("expected hello, got %s", envelope.Type)
	}
	var hello protocol.HelloPayload
	if err := envelope.DecodePayload(&hello); err != nil {
		return nil, err
	}
	if hello.Version != protocol.ProtocolVersion {
		s.writeError(conn, "", protocol.CodeMalformed,
			fmt.Sprintf("unsupported protocol version %d", hello.Version))
		return nil, fmt.Errorf("unsupported protocol version %d", hello.Version)
	}

	s.mu.Lock()
	var id ref.ParticipantID
	if hello.Resume != "" {
		id, err = ref.ParseParticipantID(hello.Resume)
		if err != nil {
			s.mu.Unlock()
			s.writeError(conn, "", protocol.CodeMalformed, "malformed resume identity")
			return nil, err
		}
	} else {
		s.nextUser++
		id, err = ref.ParseParticipantID(fmt.Sprintf("user_%08x", s.nextUser))
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	sess := &session{conn: conn, id: id}
	s.sessions[id] = sess
	s.mu.Unlock()

	welcome, err := protocol.NewEnvelope(protocol.TypeWelcome, envelope.RequestID, protocol.WelcomePayload{
		ParticipantID: id,
		ServerVersion: "collabtest",
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, welcome); err != nil {
		return nil, err
	}
	return sess, nil
}

// dispatch routes one client frame.
func (s *Server) dispatch(sess *session, envelope *protocol.Envelope) {
	switch envelope.Type {
	case protocol.TypeCreateRoom:
		s.handleCreateRoom(sess, envelope)
	case protocol.TypeJoinRoom:
		s.handleJoinRoom(sess, envelope)
	case protocol.TypeLeaveRoom:
		s.handleLeaveRoom(sess)
	case protocol.TypeCursorUpdate:
		s.handleCursorUpdate(sess, envelope)
	case protocol.TypeSelectionUpdate:
		s.handleSelectionUpdate(sess, envelope)
	case protocol.TypeChatMessage:
		s.handleChatMessage(sess, envelope)
	case protocol.TypeChatRead:
		// Read positions are not tracked by the test server.
	case protocol.TypeCreateInvite:
		s.handleCreateInvite(sess, envelope)
	case protocol.TypeSetPermission:
		s.handleSetPermission(sess, envelope)
	case protocol.TypeShareFiles:
		s.handleShareFiles(sess, envelope)
	case protocol.TypeCallState:
		s.handleCallState(sess, envelope)
	default:
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed,
			fmt.Sprintf("unknown message type %q", envelope.Type))
	}
}

func (s *Server) handleCreateRoom(sess *session, envelope *protocol.Envelope) {
	var payload protocol.CreateRoomPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, err.Error())
		return
	}
	if strings.TrimSpace(payload.DisplayName) == "" {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "display name required")
		return
	}

	s.mu.Lock()
	if sess.room != nil {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "already in a room")
		return
	}
	s.nextRoom++
	roomID, err := ref.ParseRoomID(fmt.Sprintf("room_%08x", s.nextRoom))
	if err != nil {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeInternal, err.Error())
		return
	}
	r := &room{
		id:      roomID,
		name:    payload.DisplayName + "'s room",
		hostID:  sess.id,
		members: map[ref.ParticipantID]*session{sess.id: sess},
	}
	s.rooms[roomID.String()] = r
	sess.room = r
	sess.displayName = payload.DisplayName
	sess.permission = protocol.PermissionOwner
	snapshot := s.roomSnapshotLocked(r, sess)
	s.mu.Unlock()

	s.writeReply(sess.conn, protocol.TypeRoomJoined, envelope.RequestID, snapshot)
	s.logger.Info("room created", "room_id", roomID, "host", sess.id)
}

func (s *Server) handleJoinRoom(sess *session, envelope *protocol.Envelope) {
	var payload protocol.JoinRoomPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, err.Error())
		return
	}
	if strings.TrimSpace(payload.DisplayName) == "" {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "display name required")
		return
	}

	var roomKey string
	permission := s.defaultPermission
	if ref.IsRoomID(payload.Target) {
		roomKey = payload.Target
	} else {
		roomID, invitePermission, err := s.redeemInvite(payload.Target)
		if err != nil {
			s.writeError(sess.conn, envelope.RequestID, protocol.CodeInvalidInvite, err.Error())
			return
		}
		roomKey = roomID.String()
		permission = invitePermission
	}

	s.mu.Lock()
	r, ok := s.rooms[roomKey]
	if !ok {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeRoomNotFound,
			fmt.Sprintf("no such room %q", roomKey))
		return
	}

	rejoining := false
	if existing, ok := r.members[sess.id]; ok {
		// A resumed identity re-joining after a drop keeps its old
		// permission; the stale session record is replaced.
		permission = existing.permission
		rejoining = true
	} else if len(r.members) >= s.roomCapacity {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeRoomFull,
			fmt.Sprintf("room %s is full", r.id))
		return
	}

	sess.room = r
	sess.displayName = payload.DisplayName
	sess.permission = permission
	r.members[sess.id] = sess
	snapshot := s.roomSnapshotLocked(r, sess)
	info := participantInfo(sess)
	others := s.otherMembersLocked(r, sess.id)
	s.mu.Unlock()

	s.writeReply(sess.conn, protocol.TypeRoomJoined, envelope.RequestID, snapshot)
	if !rejoining {
		s.broadcast(others, protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: info})
		s.systemChatExcept(r, sess.id, fmt.Sprintf("%s joined the room", payload.DisplayName))
	}
}

func (s *Server) handleLeaveRoom(sess *session) {
	s.removeFromRoom(sess, "left the room")
}

func (s *Server) handleCursorUpdate(sess *session, envelope *protocol.Envelope) {
	var payload protocol.CursorUpdatePayload
	if err := envelope.DecodePayload(&payload); err != nil {
		return
	}
	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		return
	}
	sess.presenceSeq++
	update := protocol.PresenceUpdatePayload{
		ParticipantID: sess.id,
		Seq:           sess.presenceSeq,
		Cursor:        &payload.Cursor,
	}
	others := s.otherMembersLocked(sess.room, sess.id)
	s.mu.Unlock()

	s.broadcast(others, protocol.TypePresenceUpdate, update)
}

func (s *Server) handleSelectionUpdate(sess *session, envelope *protocol.Envelope) {
	var payload protocol.SelectionUpdatePayload
	if err := envelope.DecodePayload(&payload); err != nil {
		return
	}
	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		return
	}
	sess.presenceSeq++
	update := protocol.PresenceUpdatePayload{
		ParticipantID: sess.id,
		Seq:           sess.presenceSeq,
		Selection:     &payload.Selection,
	}
	others := s.otherMembersLocked(sess.room, sess.id)
	s.mu.Unlock()

	s.broadcast(others, protocol.TypePresenceUpdate, update)
}

func (s *Server) handleChatMessage(sess *session, envelope *protocol.Envelope) {
	var payload protocol.ChatSendPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, err.Error())
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "empty chat message")
		return
	}

	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "not in a room")
		return
	}
	sess.room.chatSeq++
	event := protocol.ChatEventPayload{
		ID:          fmt.Sprintf("msg_%s_%d", sess.room.id, sess.room.chatSeq),
		AuthorID:    sess.id,
		Text:        payload.Text,
		TimestampMS: time.Now().UnixMilli(),
	}
	// The sender gets the echo too: the broadcast is the only path a
	// message enters any log, the author's included.
	all := s.allMembersLocked(sess.room)
	s.mu.Unlock()

	s.broadcast(all, protocol.TypeChatMessage, event)
}

func (s *Server) handleCreateInvite(sess *session, envelope *protocol.Envelope) {
	var payload protocol.CreateInvitePayload
	if err := envelope.DecodePayload(&payload); err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, err.Error())
		return
	}
	if !payload.Permission.Invitable() {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed,
			fmt.Sprintf("invites cannot grant %q", payload.Permission))
		return
	}

	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "not in a room")
		return
	}
	if !sess.permission.CanManage() {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeForbidden, "only the owner can mint invites")
		return
	}
	roomID := sess.room.id
	s.mu.Unlock()

	token, err := s.mintInvite(roomID, payload.Permission)
	if err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeInternal, err.Error())
		return
	}
	s.writeReply(sess.conn, protocol.TypeInviteCreated, envelope.RequestID, protocol.InviteCreatedPayload{
		Token:      token,
		Permission: payload.Permission,
	})
}

func (s *Server) handleSetPermission(sess *session, envelope *protocol.Envelope) {
	var payload protocol.SetPermissionPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, err.Error())
		return
	}
	if !payload.Permission.Invitable() {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed,
			fmt.Sprintf("cannot assign %q", payload.Permission))
		return
	}

	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "not in a room")
		return
	}
	if !sess.permission.CanManage() {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeForbidden, "only the owner can change permissions")
		return
	}
	target, ok := sess.room.members[payload.ParticipantID]
	if !ok {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "participant not in room")
		return
	}
	target.permission = payload.Permission
	r := sess.room
	all := s.allMembersLocked(r)
	displayName := target.displayName
	s.mu.Unlock()

	s.broadcast(all, protocol.TypePermissionChanged, protocol.PermissionChangedPayload{
		ParticipantID: payload.ParticipantID,
		Permission:    payload.Permission,
	})
	s.systemChat(r, fmt.Sprintf("%s is now a(n) %s", displayName, payload.Permission))
}

func (s *Server) handleShareFiles(sess *session, envelope *protocol.Envelope) {
	var payload protocol.ShareFilesPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, err.Error())
		return
	}

	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeMalformed, "not in a room")
		return
	}
	if !sess.permission.CanEdit() {
		s.mu.Unlock()
		s.writeError(sess.conn, envelope.RequestID, protocol.CodeForbidden, "viewers cannot share files")
		return
	}
	sess.room.files = append([]ref.FileID(nil), payload.Files...)
	all := s.allMembersLocked(sess.room)
	files := append([]ref.FileID(nil), sess.room.files...)
	s.mu.Unlock()

	s.broadcast(all, protocol.TypeSharedFilesChanged, protocol.SharedFilesChangedPayload{Files: files})
}

func (s *Server) handleCallState(sess *session, envelope *protocol.Envelope) {
	var payload protocol.CallStatePayload
	if err := envelope.DecodePayload(&payload); err != nil {
		return
	}
	s.mu.Lock()
	if sess.room == nil {
		s.mu.Unlock()
		return
	}
	payload.ParticipantID = sess.id
	others := s.otherMembersLocked(sess.room, sess.id)
	s.mu.Unlock()

	s.broadcast(others, protocol.TypeCallState, payload)
}

// drop tears a session down on connection loss or close.
func (s *Server) drop(sess *session) {
	s.removeFromRoom(sess, "disconnected")
	s.mu.Lock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()
	sess.conn.Close()
}

// removeFromRoom detaches a session from its room and announces the
// departure. Empty rooms are deleted; when the host leaves, the oldest
// remaining member inherits ownership so the room never goes
// ownerless.
func (s *Server) removeFromRoom(sess *session, reason string) {
	s.mu.Lock()
	r := sess.room
	if r == nil {
		s.mu.Unlock()
		return
	}
	sess.room = nil
	if r.members[sess.id] != sess {
		// A resumed session already replaced this one; the room entry
		// is no longer ours to remove.
		s.mu.Unlock()
		return
	}
	delete(r.members, sess.id)
	displayName := sess.displayName

	var promoted *session
	if len(r.members) == 0 {
		delete(s.rooms, r.id.String())
	} else if r.hostID == sess.id {
		for _, member := range r.members {
			if promoted == nil || member.id.String() < promoted.id.String() {
				promoted = member
			}
		}
		promoted.permission = protocol.PermissionOwner
		r.hostID = promoted.id
	}
	remaining := s.allMembersLocked(r)
	s.mu.Unlock()

	s.broadcast(remaining, protocol.TypeParticipantLeft, protocol.ParticipantLeftPayload{
		ParticipantID: sess.id,
	})
	if promoted != nil {
		s.broadcast(remaining, protocol.TypePermissionChanged, protocol.PermissionChangedPayload{
			ParticipantID: promoted.id,
			Permission:    protocol.PermissionOwner,
		})
	}
	if len(remaining) > 0 {
		s.systemChat(r, fmt.Sprintf("%s %s", displayName, reason))
	}
}

// CloseClient severs a participant's connection server-side, as a
// crashed network path would. Tests use it to exercise reconnection.
func (s *Server) CloseClient(id ref.ParticipantID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.conn.Close()
	return true
}

// RoomCount reports the number of live rooms.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// MemberPermission reports a room member's current permission.
func (s *Server) MemberPermission(roomID ref.RoomID, id ref.ParticipantID) (protocol.Permission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID.String()]
	if !ok {
		return "", false
	}
	member, ok := r.members[id]
	if !ok {
		return "", false
	}
	return member.permission, true
}

// roomSnapshotLocked builds the room_joined payload for one member.
func (s *Server) roomSnapshotLocked(r *room, self *session) protocol.RoomJoinedPayload {
	participants := make([]protocol.ParticipantInfo, 0, len(r.members))
	for _, member := range r.members {
		participants = append(participants, participantInfo(member))
	}
	return protocol.RoomJoinedPayload{
		Room: protocol.RoomInfo{
			ID:     r.id,
			Name:   r.name,
			HostID: r.hostID,
			Files:  append([]ref.FileID(nil), r.files...),
		},
		Participants:   participants,
		SelfPermission: self.permission,
	}
}

func participantInfo(sess *session) protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		ID:          sess.id,
		DisplayName: sess.displayName,
		Permission:  sess.permission,
	}
}

// systemChat interleaves a server-generated notice into the room log.
func (s *Server) systemChat(r *room, text string) {
	s.mu.Lock()
	event := s.systemEventLocked(r, text)
	all := s.allMembersLocked(r)
	s.mu.Unlock()

	s.broadcast(all, protocol.TypeChatMessage, event)
}

// systemChatExcept delivers a system notice to every member but one.
// The join notice uses it: the joiner already has the room snapshot
// and shouldn't see (or count as unread) an announcement of their own
// arrival.
func (s *Server) systemChatExcept(r *room, except ref.ParticipantID, text string) {
	s.mu.Lock()
	event := s.systemEventLocked(r, text)
	others := s.otherMembersLocked(r, except)
	s.mu.Unlock()

	s.broadcast(others, protocol.TypeChatMessage, event)
}

func (s *Server) systemEventLocked(r *room, text string) protocol.ChatEventPayload {
	r.chatSeq++
	return protocol.ChatEventPayload{
		ID:          fmt.Sprintf("msg_%s_%d", r.id, r.chatSeq),
		System:      true,
		Text:        text,
		TimestampMS: time.Now().UnixMilli(),
	}
}

func (s *Server) allMembersLocked(r *room) []*session {
	out := make([]*session, 0, len(r.members))
	for _, member := range r.members {
		out = append(out, member)
	}
	return out
}

func (s *Server) otherMembersLocked(r *room, except ref.ParticipantID) []*session {
	out := make([]*session, 0, len(r.members))
	for id, member := range r.members {
		if id != except {
			out = append(out, member)
		}
	}
	return out
}

// broadcast fans an event out to the given members. Write failures are
// per-member: one dead connection never blocks the rest.
func (s *Server) broadcast(members []*session, messageType protocol.MessageType, payload any) {
	envelope, err := protocol.NewEnvelope(messageType, "", payload)
	if err != nil {
		s.logger.Error("encoding broadcast failed", "type", messageType, "error", err)
		return
	}
	for _, member := range members {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := member.conn.Write(ctx, envelope); err != nil {
			s.logger.Debug("broadcast write failed", "participant_id", member.id, "error", err)
		}
		cancel()
	}
}

func (s *Server) writeReply(conn transport.Conn, messageType protocol.MessageType, requestID string, payload any) {
	envelope, err := protocol.NewEnvelope(messageType, requestID, payload)
	if err != nil {
		s.logger.Error("encoding reply failed", "type", messageType, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, envelope); err != nil {
		s.logger.Debug("reply write failed", "type", messageType, "error", err)
	}
}

func (s *Server) writeError(conn transport.Conn, requestID string, code protocol.ErrorCode, message string) {
	s.writeReply(conn, protocol.TypeError, requestID, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
}
