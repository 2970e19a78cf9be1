package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"voxrelay/internal/core/domain"
	"voxrelay/pkg/utils"

	"go.uber.org/zap"
)

// Log line shapes written by the chat backend:
//
//	[timestamp] user-X -> user-Y | body
//	[timestamp] user-X @group | body
//
// A body starting with "[voice] " names a voice note file instead of text.
var (
	privateLineRe = regexp.MustCompile(`\[(.*?)\]\s+user-(\d+)\s+->\s+user-(\d+)\s+\|\s+(.+)`)
	groupLineRe   = regexp.MustCompile(`\[(.*?)\]\s+user-(\d+)\s+@(\S+)\s+\|\s+(.+)`)
)

const voiceMarker = "[voice] "

// Message is one text entry from a conversation log.
type Message struct {
	Timestamp string          `json:"timestamp"`
	From      domain.ClientID `json:"from"`
	To        domain.ClientID `json:"to,omitempty"`
	Group     string          `json:"group,omitempty"`
	Content   string          `json:"content"`
}

// VoiceNote is one voice entry from a conversation log. The bytes live in
// the conversation's voice directory, served separately.
type VoiceNote struct {
	Timestamp string          `json:"timestamp"`
	From      domain.ClientID `json:"from"`
	To        domain.ClientID `json:"to,omitempty"`
	Group     string          `json:"group,omitempty"`
	Filename  string          `json:"filename"`
}

// Conversation is the parsed content of one history log.
type Conversation struct {
	Messages   []Message   `json:"messages"`
	VoiceNotes []VoiceNote `json:"voiceNotes"`
}

// Store reads the flat-file history directory that the chat backend writes
// to. The gateway never writes here.
type Store struct {
	dir    string
	logger *zap.SugaredLogger
}

func NewStore(dir string, logger *zap.SugaredLogger) *Store {
	return &Store{dir: dir, logger: logger}
}

// privateLogName orders the pair numerically when both ids are numeric so
// that either participant resolves to the same file.
func privateLogName(a, b domain.ClientID) string {
	lo, hi := a.String(), b.String()
	na, errA := strconv.Atoi(lo)
	nb, errB := strconv.Atoi(hi)
	switch {
	case errA == nil && errB == nil:
		if na > nb {
			lo, hi = hi, lo
		}
	default:
		if lo > hi {
			lo, hi = hi, lo
		}
	}
	return fmt.Sprintf("user-%s_%s.log", lo, hi)
}

func groupLogName(group string) string {
	return fmt.Sprintf("group-%s.log", group)
}

// PrivateConversation returns the history between two clients. A missing
// log file means an empty conversation, not an error.
func (s *Store) PrivateConversation(a, b domain.ClientID) (Conversation, error) {
	return s.parseLog(privateLogName(a, b), s.parsePrivateLine)
}

// GroupConversation returns the history of a group.
func (s *Store) GroupConversation(group string) (Conversation, error) {
	return s.parseLog(groupLogName(group), s.parseGroupLine)
}

// VoiceNotePath resolves the on-disk path for a voice note, confined to
// the history directory. conv may name the conversation with or without
// the "_voice" directory suffix.
func (s *Store) VoiceNotePath(conv, filename string) (string, error) {
	dirName := conv
	if !strings.HasSuffix(dirName, "_voice") {
		dirName += "_voice"
	}

	// Reject traversal out of the history directory.
	path := filepath.Join(s.dir, dirName, filename)
	clean := filepath.Clean(path)
	base := filepath.Clean(s.dir) + string(filepath.Separator)
	if !strings.HasPrefix(clean, base) {
		return "", fmt.Errorf("voice note path escapes history dir: %s/%s", conv, filename)
	}

	if _, err := os.Stat(clean); err != nil {
		return "", err
	}
	return clean, nil
}

type lineParser func(line string, conv *Conversation) bool

func (s *Store) parseLog(name string, parse lineParser) (Conversation, error) {
	conv := Conversation{
		Messages:   []Message{},
		VoiceNotes: []VoiceNote{},
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return conv, nil
		}
		return conv, fmt.Errorf("open history log %s: %w", name, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !parse(line, &conv) {
			s.logger.Debugw("skipping unparseable history line",
				"file", name,
				"line", utils.TruncateString(line, 120),
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return conv, fmt.Errorf("read history log %s: %w", name, err)
	}
	return conv, nil
}

func (s *Store) parsePrivateLine(line string, conv *Conversation) bool {
	m := privateLineRe.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	ts, from, to, body := m[1], domain.ClientID(m[2]), domain.ClientID(m[3]), m[4]

	if strings.HasPrefix(body, voiceMarker) {
		conv.VoiceNotes = append(conv.VoiceNotes, VoiceNote{
			Timestamp: ts,
			From:      from,
			To:        to,
			Filename:  strings.TrimSpace(strings.TrimPrefix(body, voiceMarker)),
		})
		return true
	}

	conv.Messages = append(conv.Messages, Message{
		Timestamp: ts,
		From:      from,
		To:        to,
		Content:   body,
	})
	return true
}

func (s *Store) parseGroupLine(line string, conv *Conversation) bool {
	m := groupLineRe.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	ts, from, group, body := m[1], domain.ClientID(m[2]), m[3], m[4]

	if strings.HasPrefix(body, voiceMarker) {
		conv.VoiceNotes = append(conv.VoiceNotes, VoiceNote{
			Timestamp: ts,
			From:      from,
			Group:     group,
			Filename:  strings.TrimSpace(strings.TrimPrefix(body, voiceMarker)),
		})
		return true
	}

	conv.Messages = append(conv.Messages, Message{
		Timestamp: ts,
		From:      from,
		Group:     group,
		Content:   body,
	})
	return true
}
