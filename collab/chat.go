// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"strings"
	"time"

	"github.com/tandem-editor/tandem/lib/palette"
	"github.com/tandem-editor/tandem/protocol"
)

// SendChatMessage submits a chat message to the room. The message does
// not appear in the local log until the server's broadcast echoes it
// back — a single canonical ordering for everyone, at the cost of echo
// latency on the sender's own messages.
func (e *Engine) SendChatMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	e.mu.Lock()
	if e.room == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	e.mu.Unlock()

	return e.send(ctx, protocol.TypeChatMessage, protocol.ChatSendPayload{Text: text})
}

// MarkChatAsRead zeroes the unread counter and reports the read
// position to the server, best effort. The local counter resets even
// when the report cannot be sent — unread state is a local display
// concern, not server truth.
func (e *Engine) MarkChatAsRead() {
	var notify notifier
	e.mu.Lock()
	changed := e.chatUnread != 0
	e.chatUnread = 0
	connected := e.connState == StateConnected && e.room != nil
	if changed {
		e.queueChangeLocked(&notify)
	}
	e.mu.Unlock()
	notify.run()

	if connected {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.send(ctx, protocol.TypeChatRead, nil); err != nil {
			e.logger.Debug("chat read report dropped", "error", err)
		}
	}
}

// SetChatActive tells the engine whether the chat view is visible.
// Messages arriving while it is visible don't count as unread.
func (e *Engine) SetChatActive(active bool) {
	e.mu.Lock()
	e.chatActive = active
	e.mu.Unlock()
}

// applyChatMessageLocked appends a server chat broadcast to the log.
// Arrival order is canonical; the server timestamp is display only.
func (e *Engine) applyChatMessageLocked(envelope *protocol.Envelope, notify *notifier) {
	var payload protocol.ChatEventPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed chat_message payload", "error", err)
		return
	}
	if e.room == nil {
		e.logger.Debug("chat message outside a room dropped", "message_id", payload.ID)
		return
	}

	color := palette.System()
	if !payload.System && !payload.AuthorID.IsZero() {
		color = palette.ColorFor(payload.AuthorID)
	}

	e.chatSeq++
	message := ChatMessage{
		ID:       payload.ID,
		AuthorID: payload.AuthorID,
		System:   payload.System,
		Color:    color,
		Text:     payload.Text,
		Time:     time.UnixMilli(payload.TimestampMS),
		Seq:      e.chatSeq,
	}
	e.chatLog = append(e.chatLog, message)
	if excess := len(e.chatLog) - e.config.ChatRetentionLimit; excess > 0 {
		e.chatLog = append(e.chatLog[:0:0], e.chatLog[excess:]...)
	}

	if author, ok := e.participants[payload.AuthorID]; ok {
		author.LastActive = e.clock.Now()
	}

	// The author's own messages and anything arriving while the chat
	// view is open don't count as unread.
	if !e.chatActive && payload.AuthorID != e.selfID {
		e.chatUnread++
	}

	e.queueChangeLocked(notify)
}
