// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// tandem-probe is a terminal debugging client for the collaboration
// engine. It connects to a server (or spins up an embedded in-memory
// one with --local), creates or joins a room, and tails membership,
// chat, presence, and permission events with per-participant color.
// Lines typed on stdin are sent as chat messages.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tandem-editor/tandem/collab"
	"github.com/tandem-editor/tandem/internal/collabtest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		serverURL  string
		name       string
		createRoom bool
		joinTarget string
		logLevel   string
		local      bool
	)

	flagSet := pflag.NewFlagSet("tandem-probe", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (flags override it)")
	flagSet.StringVar(&serverURL, "server", "", "collaboration server URL (ws://...)")
	flagSet.StringVar(&name, "name", "probe", "display name to join with")
	flagSet.BoolVar(&createRoom, "create", false, "create a room and print its share link")
	flagSet.StringVar(&joinTarget, "join", "", "room ID, invite token, or share/invite URL to join")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.BoolVar(&local, "local", false, "run against an embedded in-memory server")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		config.ServerURL = serverURL
	}
	config.Logger = newLogger(logLevel)

	if local {
		server := collabtest.NewServer(collabtest.Config{Logger: config.Logger})
		config.Dialer = server.Dialer()
		if config.ServerURL == "" {
			config.ServerURL = "pipe://local"
		}
	}
	if config.ServerURL == "" {
		return fmt.Errorf("no server: pass --server, set TANDEM_SERVER_URL, or use --local")
	}
	if !createRoom && joinTarget == "" {
		return fmt.Errorf("nothing to do: pass --create or --join TARGET")
	}

	engine, err := collab.New(config)
	if err != nil {
		return err
	}
	defer engine.Disconnect()

	tail := newTailer(engine)
	engine.OnStateChange(tail.stateChanged)
	engine.OnChange(tail.sessionChanged)

	ctx := context.Background()
	if err := engine.Connect(ctx); err != nil {
		return err
	}

	switch {
	case createRoom:
		if _, err := engine.CreateRoom(ctx, name); err != nil {
			return err
		}
		link, err := engine.ShareLink()
		if err != nil {
			return err
		}
		fmt.Printf("room created — share link: %s\n", link)
	case joinTarget != "":
		if _, err := engine.JoinRoom(ctx, joinTarget, name); err != nil {
			return err
		}
		room := engine.Room()
		fmt.Printf("joined %s (%s)\n", room.Name, room.ID)
	}

	// Stdin lines become chat; EOF ends the session.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := engine.SendChatMessage(ctx, text); err != nil {
			fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		}
	}
	return scanner.Err()
}

// loadConfig builds the engine config from the environment and an
// optional YAML file. Precedence: defaults < env < file < flags.
func loadConfig(path string) (collab.Config, error) {
	config, err := collab.ConfigFromEnv()
	if err != nil {
		return collab.Config{}, err
	}
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return collab.Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return collab.Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

var (
	systemStyle = lipgloss.NewStyle().Faint(true)
	stateStyle  = lipgloss.NewStyle().Bold(true)
)

// tailer diffs engine snapshots on change notifications and prints
// what moved: new chat messages, membership changes, cursor positions.
type tailer struct {
	engine *collab.Engine

	lastChatSeq  uint64
	participants map[string]string // ID -> rendered presence line
}

func newTailer(engine *collab.Engine) *tailer {
	return &tailer{engine: engine, participants: make(map[string]string)}
}

func (t *tailer) stateChanged(state collab.ConnState) {
	fmt.Println(stateStyle.Render("· connection: " + state.String()))
}

func (t *tailer) sessionChanged() {
	for _, message := range t.engine.Messages() {
		if message.Seq <= t.lastChatSeq {
			continue
		}
		t.lastChatSeq = message.Seq
		t.printChat(message)
	}
	t.printPresenceDiff()
}

func (t *tailer) printChat(message collab.ChatMessage) {
	stamp := message.Time.Format("15:04:05")
	if message.System {
		fmt.Println(systemStyle.Render(fmt.Sprintf("%s — %s", stamp, message.Text)))
		return
	}
	author := message.AuthorID.String()
	if p, ok := t.engine.Participant(message.AuthorID); ok {
		author = p.DisplayName
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(string(message.Color)))
	fmt.Printf("%s %s: %s\n", stamp, style.Render(author), message.Text)
}

func (t *tailer) printPresenceDiff() {
	seen := make(map[string]bool)
	participants := t.engine.Participants()
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID.String() < participants[j].ID.String()
	})
	for _, p := range participants {
		line := renderParticipant(p)
		id := p.ID.String()
		seen[id] = true
		if t.participants[id] != line {
			t.participants[id] = line
			fmt.Println(line)
		}
	}
	for id := range t.participants {
		if !seen[id] {
			delete(t.participants, id)
			fmt.Println(systemStyle.Render("· " + id + " left"))
		}
	}
}

func renderParticipant(p collab.Participant) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(string(p.Color)))
	var flags []string
	if p.Permission != "" {
		flags = append(flags, string(p.Permission))
	}
	if p.AudioActive {
		if p.Muted {
			flags = append(flags, "mic:muted")
		} else {
			flags = append(flags, "mic:on")
		}
	}
	if p.VideoActive {
		flags = append(flags, "cam:on")
	}
	position := ""
	if p.Cursor != nil {
		position = fmt.Sprintf(" @ %s:%d:%d", p.Cursor.FileID, p.Cursor.Line, p.Cursor.Column)
	}
	return fmt.Sprintf("· %s [%s]%s", style.Render(p.DisplayName), strings.Join(flags, " "), position)
}
