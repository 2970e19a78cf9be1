package backend

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
	"voxrelay/pkg/circuitbreaker"
	"voxrelay/pkg/tracing"
	"voxrelay/pkg/utils"

	"go.uber.org/zap"
)

// Line protocol markers of the chat backend. The greeting assigns the
// client id; the group list is a multi-line block between a header and a
// trailer line.
var (
	greetingIDRe     = regexp.MustCompile(`id\D+(\d+)`)
	groupEntryRe     = regexp.MustCompile(`^-\s+(.+?)\s+\(`)
	groupListHeader  = "--- GRUPOS DISPONIBLES ---"
	groupListTrailer = "Únete con:"
)

// Session is one live line-oriented TCP session against the chat backend.
// Incoming lines are queued until the owning client polls them; commands
// go through the shared circuit breaker so a dead backend fails fast.
type Session struct {
	conn       net.Conn
	clientID   domain.ClientID
	cmdTimeout time.Duration
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger

	writeMu sync.Mutex

	mu           sync.Mutex
	connected    bool
	queue        []ports.BackendMessage
	listeners    map[int]func(string)
	nextListener int
}

// newSession reads the greeting line, extracts the assigned client id and
// starts the line reader.
func newSession(conn net.Conn, dialTimeout, cmdTimeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *zap.SugaredLogger) (*Session, error) {
	reader := bufio.NewReader(conn)

	conn.SetReadDeadline(time.Now().Add(dialTimeout))
	greeting, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read backend greeting: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	match := greetingIDRe.FindStringSubmatch(greeting)
	if match == nil {
		conn.Close()
		return nil, fmt.Errorf("backend greeting carries no client id: %q", strings.TrimSpace(greeting))
	}

	s := &Session{
		conn:       conn,
		clientID:   domain.ClientID(match[1]),
		cmdTimeout: cmdTimeout,
		breaker:    breaker,
		logger:     logger,
		connected:  true,
		listeners:  make(map[int]func(string)),
	}

	go s.readLoop(reader)

	logger.Infow("backend session established", "client_id", s.clientID, "remote", conn.RemoteAddr())
	return s, nil
}

func (s *Session) ClientID() domain.ClientID { return s.clientID }

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) readLoop(reader *bufio.Reader) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := utils.SanitizeString(scanner.Text())
		if line == "" {
			continue
		}
		s.dispatchLine(line)
	}

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.conn.Close()

	s.logger.Infow("backend session closed", "client_id", s.clientID, "error", scanner.Err())
}

func (s *Session) dispatchLine(line string) {
	s.mu.Lock()
	s.queue = append(s.queue, ports.BackendMessage{
		Content:   line,
		Timestamp: time.Now(),
	})
	listeners := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(line)
	}
}

// addLineListener registers fn for every incoming line and returns its
// remover. Used by multi-line replies like the group list.
func (s *Session) addLineListener(fn func(string)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) DrainMessages() []ports.BackendMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.queue
	s.queue = nil
	return msgs
}

// command writes one line through the circuit breaker.
func (s *Session) command(ctx context.Context, name, line string) error {
	_, span := tracing.TraceBackendCommand(ctx, name, s.clientID.String())
	defer span.End()

	err := s.breaker.Execute(ctx, func() error {
		return s.writeLine(line)
	})
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (s *Session) writeLine(line string) error {
	if !s.Connected() {
		return domain.ErrBackendUnavailable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cmdTimeout))
	_, err := fmt.Fprintf(s.conn, "%s\n", line)
	return err
}

func (s *Session) SendPrivateMessage(ctx context.Context, target domain.ClientID, text string) error {
	return s.command(ctx, "msg", fmt.Sprintf("/msg %s %s", target, text))
}

func (s *Session) SendGroupMessage(ctx context.Context, group, text string) error {
	return s.command(ctx, "msgGroup", fmt.Sprintf("/msgGroup %s %s", group, text))
}

func (s *Session) CreateGroup(ctx context.Context, name string) error {
	return s.command(ctx, "createGroup", fmt.Sprintf("/createGroup %s", name))
}

func (s *Session) JoinGroup(ctx context.Context, name string) error {
	return s.command(ctx, "joinGroup", fmt.Sprintf("/joinGroup %s", name))
}

// ListGroups sends /listGroups and collects the reply block. The reply
// arrives as ordinary lines, so a temporary listener accumulates entries
// between the header and trailer markers.
func (s *Session) ListGroups(ctx context.Context) ([]string, error) {
	result := make(chan []string, 1)
	var (
		mu      sync.Mutex
		started bool
		entries []string
		done    bool
	)

	remove := s.addLineListener(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		switch {
		case strings.Contains(line, groupListHeader):
			started = true
			entries = entries[:0]
		case started && strings.HasPrefix(line, groupListTrailer):
			done = true
			groups := make([]string, 0, len(entries))
			for _, e := range entries {
				if m := groupEntryRe.FindStringSubmatch(e); m != nil {
					groups = append(groups, m[1])
				}
			}
			result <- groups
		case started:
			entries = append(entries, line)
		}
	})
	defer remove()

	if err := s.command(ctx, "listGroups", "/listGroups"); err != nil {
		return nil, err
	}

	select {
	case groups := <-result:
		return groups, nil
	case <-time.After(s.cmdTimeout):
		return nil, fmt.Errorf("timed out waiting for group list")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Voice notes use a mixed framing: a textual header line, the byte count
// on its own line, then the raw bytes. The three writes happen under one
// lock so concurrent commands cannot interleave with the payload.
func (s *Session) sendVoiceNote(ctx context.Context, name, header string, data []byte) error {
	_, span := tracing.TraceBackendCommand(ctx, name, s.clientID.String())
	defer span.End()

	return s.breaker.Execute(ctx, func() error {
		if !s.Connected() {
			return domain.ErrBackendUnavailable
		}

		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		s.conn.SetWriteDeadline(time.Now().Add(s.cmdTimeout))
		if _, err := fmt.Fprintf(s.conn, "%s\n%d\n", header, len(data)); err != nil {
			return err
		}
		_, err := s.conn.Write(data)
		return err
	})
}

func (s *Session) SendVoiceNoteToUser(ctx context.Context, target domain.ClientID, filename string, data []byte) error {
	return s.sendVoiceNote(ctx, "voicenoteUser", fmt.Sprintf("voicenoteUser:%s:%s", target, filename), data)
}

func (s *Session) SendVoiceNoteToGroup(ctx context.Context, group, filename string, data []byte) error {
	return s.sendVoiceNote(ctx, "voicenoteGroup", fmt.Sprintf("voicenoteGroup:%s:%s", group, filename), data)
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return s.conn.Close()
}
