package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
	"voxrelay/internal/core/services"
	"voxrelay/internal/infrastructure/history"
	"voxrelay/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSession struct {
	id        domain.ClientID
	connected bool
	groups    []string
	queue     []ports.BackendMessage
	err       error

	privateSent []string
	groupSent   []string
	created     []string
	joined      []string
}

func (s *stubSession) ClientID() domain.ClientID { return s.id }
func (s *stubSession) Connected() bool           { return s.connected }

func (s *stubSession) SendPrivateMessage(_ context.Context, target domain.ClientID, text string) error {
	if s.err != nil {
		return s.err
	}
	s.privateSent = append(s.privateSent, target.String()+":"+text)
	return nil
}

func (s *stubSession) SendGroupMessage(_ context.Context, group, text string) error {
	if s.err != nil {
		return s.err
	}
	s.groupSent = append(s.groupSent, group+":"+text)
	return nil
}

func (s *stubSession) CreateGroup(_ context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, name)
	return nil
}

func (s *stubSession) JoinGroup(_ context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	s.joined = append(s.joined, name)
	return nil
}

func (s *stubSession) ListGroups(context.Context) ([]string, error) {
	return s.groups, s.err
}

func (s *stubSession) SendVoiceNoteToUser(context.Context, domain.ClientID, string, []byte) error {
	return s.err
}

func (s *stubSession) SendVoiceNoteToGroup(context.Context, string, string, []byte) error {
	return s.err
}

func (s *stubSession) DrainMessages() []ports.BackendMessage {
	msgs := s.queue
	s.queue = nil
	return msgs
}

func (s *stubSession) Close() error { return nil }

type stubPool struct {
	sessions   map[domain.ClientID]*stubSession
	connectErr error
}

func (p *stubPool) Connect(context.Context) (ports.BackendSession, error) {
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	s := &stubSession{id: "42", connected: true}
	p.sessions[s.id] = s
	return s, nil
}

func (p *stubPool) Session(id domain.ClientID) (ports.BackendSession, bool) {
	s, ok := p.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (p *stubPool) Disconnect(id domain.ClientID) error {
	if _, ok := p.sessions[id]; !ok {
		return domain.ErrClientNotConnected
	}
	delete(p.sessions, id)
	return nil
}

func (p *stubPool) ConnectedIDs() []domain.ClientID {
	ids := make([]domain.ClientID, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (p *stubPool) Close() error { return nil }

type handlerFixture struct {
	router     *gin.Engine
	pool       *stubPool
	registry   *signal.Registry
	historyDir string
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop().Sugar()
	pool := &stubPool{sessions: make(map[domain.ClientID]*stubSession)}
	registry := signal.NewRegistry(logger)
	historyDir := t.TempDir()

	handler := NewGatewayHandler(pool, registry, services.NewCallTable(),
		history.NewStore(historyDir, logger), nil, logger)

	router := gin.New()
	handler.SetupRoutes(router)

	return &handlerFixture{
		router:     router,
		pool:       pool,
		registry:   registry,
		historyDir: historyDir,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestConnect(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/api/connect", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])

	// Numeric ids keep their numeric JSON shape.
	assert.Equal(t, float64(42), resp["clientId"])
}

func TestConnect_BackendDown(t *testing.T) {
	f := newFixture(t)
	f.pool.connectErr = errors.New("connection refused")

	w, resp := f.do(t, http.MethodPost, "/api/connect", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "BACKEND_GATEWAY", resp["code"])
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true}

	w, resp := f.do(t, http.MethodPost, "/api/disconnect", `{"clientId":"7"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])

	w, _ = f.do(t, http.MethodPost, "/api/disconnect", `{"clientId":"7"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDisconnect_BadRequest(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/api/disconnect", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	sess := &stubSession{id: "7", connected: true}
	f.pool.sessions["7"] = sess

	w, resp := f.do(t, http.MethodPost, "/api/groups/create", `{"clientId":"7","groupName":"friends"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "friends", resp["groupName"])
	assert.Equal(t, []string{"friends"}, sess.created)
}

func TestCreateGroup_InvalidName(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true}

	w, resp := f.do(t, http.MethodPost, "/api/groups/create", `{"clientId":"7","groupName":"bad name!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp["code"])
}

func TestJoinGroup_NoSession(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/api/groups/join", `{"clientId":"7","groupName":"friends"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["code"])
}

func TestListGroups(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true, groups: []string{"friends", "team"}}

	w, resp := f.do(t, http.MethodGet, "/api/groups/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"friends", "team"}, resp["groups"])
}

func TestSendPrivateMessage(t *testing.T) {
	f := newFixture(t)
	sess := &stubSession{id: "7", connected: true}
	f.pool.sessions["7"] = sess

	w, _ := f.do(t, http.MethodPost, "/api/messages/user", `{"clientId":"7","targetId":"12","message":"hola"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"12:hola"}, sess.privateSent)
}

func TestSendPrivateMessage_RejectsNewlines(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true}

	// Newlines would smuggle extra commands into the line protocol.
	w, resp := f.do(t, http.MethodPost, "/api/messages/user", `{"clientId":"7","targetId":"12","message":"a\nb"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp["code"])
}

func TestSendGroupMessage_BackendFailure(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true, err: errors.New("broken pipe")}

	w, resp := f.do(t, http.MethodPost, "/api/messages/group", `{"clientId":"7","groupName":"friends","message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "BACKEND_GATEWAY", resp["code"])
}

func TestPollMessages(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true, queue: []ports.BackendMessage{
		{Content: "user-12: hola", Timestamp: time.Now()},
	}}

	w, resp := f.do(t, http.MethodGet, "/api/messages/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	msgs := resp["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "user-12: hola", msgs[0].(map[string]interface{})["content"])

	// Drained on read.
	_, resp = f.do(t, http.MethodGet, "/api/messages/7", "")
	assert.Empty(t, resp["messages"])
}

func TestPrivateHistory(t *testing.T) {
	f := newFixture(t)
	logPath := filepath.Join(f.historyDir, "user-7_12.log")
	require.NoError(t, os.WriteFile(logPath, []byte(
		"[2026-08-01 10:00:00] user-7 -> user-12 | hola\n"+
			"[2026-08-01 10:01:00] user-12 -> user-7 | [voice] note.wav\n"), 0o644))

	w, resp := f.do(t, http.MethodGet, "/api/history/user/12/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["messages"], 1)
	assert.Len(t, resp["voiceNotes"], 1)
}

func TestGroupHistory_Empty(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/history/group/friends", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Empty arrays, never null.
	assert.NotNil(t, resp["messages"])
	assert.NotNil(t, resp["voiceNotes"])
	assert.Empty(t, resp["messages"])
}

func TestServeVoiceNote(t *testing.T) {
	f := newFixture(t)
	voiceDir := filepath.Join(f.historyDir, "user-7_12_voice")
	require.NoError(t, os.MkdirAll(voiceDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(voiceDir, "note.wav"), []byte("audio-bytes"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/voice/user-7_12/note.wav", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio-bytes", w.Body.String())
}

func TestServeVoiceNote_Missing(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/voice/user-7_12/absent.wav", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["code"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/status/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["connected"])
	assert.Equal(t, false, resp["websocket"])

	f.pool.sessions["7"] = &stubSession{id: "7", connected: true}
	_, resp = f.do(t, http.MethodGet, "/api/status/7", "")
	assert.Equal(t, true, resp["connected"])
}

type stubRemotePresence struct {
	online map[domain.ClientID]bool
}

func (s *stubRemotePresence) IsOnlineAnywhere(_ context.Context, id domain.ClientID) (bool, error) {
	return s.online[id], nil
}

func TestStatus_RemotePresence(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop().Sugar()
	pool := &stubPool{sessions: make(map[domain.ClientID]*stubSession)}
	remote := &stubRemotePresence{online: map[domain.ClientID]bool{"9": true}}

	handler := NewGatewayHandler(pool, signal.NewRegistry(logger), services.NewCallTable(),
		history.NewStore(t.TempDir(), logger), remote, logger)
	router := gin.New()
	handler.SetupRoutes(router)
	f := &handlerFixture{router: router, pool: pool}

	// Not registered here, but a sibling instance holds the websocket.
	_, resp := f.do(t, http.MethodGet, "/api/status/9", "")
	assert.Equal(t, false, resp["websocket"])
	assert.Equal(t, true, resp["remote"])

	_, resp = f.do(t, http.MethodGet, "/api/status/8", "")
	assert.Equal(t, false, resp["remote"])
}

func TestListClients(t *testing.T) {
	f := newFixture(t)
	f.pool.sessions["7"] = &stubSession{id: "7", connected: true}

	w, resp := f.do(t, http.MethodGet, "/api/clients", "")
	assert.Equal(t, http.StatusOK, w.Code)
	clients := resp["clients"].([]interface{})
	require.Len(t, clients, 1)
	assert.Equal(t, float64(7), clients[0].(map[string]interface{})["id"])
}
