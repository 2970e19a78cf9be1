package http

import (
	"context"
	"net/http"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
	"voxrelay/internal/infrastructure/history"
	"voxrelay/internal/infrastructure/signal"
	apperrors "voxrelay/pkg/errors"
	"voxrelay/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RemotePresence answers whether a client is registered on any gateway
// instance, not just this one. Nil when the deployment is single-instance.
type RemotePresence interface {
	IsOnlineAnywhere(ctx context.Context, id domain.ClientID) (bool, error)
}

// GatewayHandler exposes the REST glue around the gateway: backend session
// lifecycle, text messaging, group management, message polling, history
// reads and voice note serving. The real-time path lives on the websocket;
// everything here is request/response plumbing to the chat backend.
type GatewayHandler struct {
	backends ports.BackendPool
	registry *signal.Registry
	calls    ports.CallTable
	history  *history.Store
	remote   RemotePresence
	logger   *zap.SugaredLogger
}

func NewGatewayHandler(
	backends ports.BackendPool,
	registry *signal.Registry,
	calls ports.CallTable,
	historyStore *history.Store,
	remote RemotePresence,
	logger *zap.SugaredLogger,
) *GatewayHandler {
	return &GatewayHandler{
		backends: backends,
		registry: registry,
		calls:    calls,
		history:  historyStore,
		remote:   remote,
		logger:   logger,
	}
}

func (h *GatewayHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/connect", h.Connect)
		api.POST("/disconnect", h.Disconnect)

		api.POST("/groups/create", h.CreateGroup)
		api.POST("/groups/join", h.JoinGroup)
		api.GET("/groups/:clientId", h.ListGroups)

		api.POST("/messages/user", h.SendPrivateMessage)
		api.POST("/messages/group", h.SendGroupMessage)
		api.GET("/messages/:clientId", h.PollMessages)

		api.GET("/history/user/:fromId/:toId", h.PrivateHistory)
		api.GET("/history/group/:groupName", h.GroupHistory)
		api.GET("/voice/:conv/:filename", h.ServeVoiceNote)

		api.GET("/status/:clientId", h.Status)
		api.GET("/clients", h.ListClients)
	}
}

func (h *GatewayHandler) respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus, gin.H{
		"success": false,
		"error":   err.Message,
		"code":    err.Code,
	})
}

// Connect dials the chat backend and returns the identity it assigned.
// The caller then registers that identity on the websocket.
func (h *GatewayHandler) Connect(c *gin.Context) {
	session, err := h.backends.Connect(c.Request.Context())
	if err != nil {
		h.logger.Warnw("backend connect failed", "error", err)
		h.respondError(c, apperrors.NewBackendGatewayError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"clientId": session.ClientID(),
	})
}

func (h *GatewayHandler) Disconnect(c *gin.Context) {
	var req struct {
		ClientID domain.ClientID `json:"clientId" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := h.backends.Disconnect(req.ClientID); err != nil {
		h.respondError(c, apperrors.NewNotFoundError("backend session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// session resolves the backend session for a client or writes the 404.
func (h *GatewayHandler) session(c *gin.Context, id domain.ClientID) (ports.BackendSession, bool) {
	session, exists := h.backends.Session(id)
	if !exists {
		h.respondError(c, apperrors.NewNotFoundError("backend session"))
		return nil, false
	}
	return session, true
}

func (h *GatewayHandler) CreateGroup(c *gin.Context) {
	var req struct {
		ClientID  domain.ClientID `json:"clientId" binding:"required"`
		GroupName string          `json:"groupName" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := validation.ValidateGroupName(req.GroupName); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, ok := h.session(c, req.ClientID)
	if !ok {
		return
	}

	if err := session.CreateGroup(c.Request.Context(), req.GroupName); err != nil {
		h.respondError(c, apperrors.NewBackendGatewayError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "groupName": req.GroupName})
}

func (h *GatewayHandler) JoinGroup(c *gin.Context) {
	var req struct {
		ClientID  domain.ClientID `json:"clientId" binding:"required"`
		GroupName string          `json:"groupName" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := validation.ValidateGroupName(req.GroupName); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, ok := h.session(c, req.ClientID)
	if !ok {
		return
	}

	if err := session.JoinGroup(c.Request.Context(), req.GroupName); err != nil {
		h.respondError(c, apperrors.NewBackendGatewayError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "groupName": req.GroupName})
}

func (h *GatewayHandler) ListGroups(c *gin.Context) {
	clientID := domain.ClientID(c.Param("clientId"))

	session, ok := h.session(c, clientID)
	if !ok {
		return
	}

	groups, err := session.ListGroups(c.Request.Context())
	if err != nil {
		h.respondError(c, apperrors.NewBackendGatewayError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "groups": groups})
}

func (h *GatewayHandler) SendPrivateMessage(c *gin.Context) {
	var req struct {
		ClientID domain.ClientID `json:"clientId" binding:"required"`
		TargetID domain.ClientID `json:"targetId" binding:"required"`
		Message  string          `json:"message" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := validation.ValidateMessage(req.Message); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, ok := h.session(c, req.ClientID)
	if !ok {
		return
	}

	if err := session.SendPrivateMessage(c.Request.Context(), req.TargetID, req.Message); err != nil {
		h.respondError(c, apperrors.NewBackendGatewayError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *GatewayHandler) SendGroupMessage(c *gin.Context) {
	var req struct {
		ClientID  domain.ClientID `json:"clientId" binding:"required"`
		GroupName string          `json:"groupName" binding:"required"`
		Message   string          `json:"message" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := validation.ValidateMessage(req.Message); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, ok := h.session(c, req.ClientID)
	if !ok {
		return
	}

	if err := session.SendGroupMessage(c.Request.Context(), req.GroupName, req.Message); err != nil {
		h.respondError(c, apperrors.NewBackendGatewayError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PollMessages drains and returns backend lines queued for a client.
func (h *GatewayHandler) PollMessages(c *gin.Context) {
	clientID := domain.ClientID(c.Param("clientId"))

	session, ok := h.session(c, clientID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": session.DrainMessages(),
	})
}

func (h *GatewayHandler) PrivateHistory(c *gin.Context) {
	from := domain.ClientID(c.Param("fromId"))
	to := domain.ClientID(c.Param("toId"))

	conv, err := h.history.PrivateConversation(from, to)
	if err != nil {
		h.logger.Warnw("private history read failed", "from", from, "to", to, "error", err)
		h.respondError(c, apperrors.NewInternalError("failed to read history"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"messages":   conv.Messages,
		"voiceNotes": conv.VoiceNotes,
	})
}

func (h *GatewayHandler) GroupHistory(c *gin.Context) {
	group := c.Param("groupName")

	conv, err := h.history.GroupConversation(group)
	if err != nil {
		h.logger.Warnw("group history read failed", "group", group, "error", err)
		h.respondError(c, apperrors.NewInternalError("failed to read history"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"messages":   conv.Messages,
		"voiceNotes": conv.VoiceNotes,
	})
}

func (h *GatewayHandler) ServeVoiceNote(c *gin.Context) {
	path, err := h.history.VoiceNotePath(c.Param("conv"), c.Param("filename"))
	if err != nil {
		h.respondError(c, apperrors.NewNotFoundError("voice note"))
		return
	}
	c.File(path)
}

// Status reports both legs of a client's connectivity: the backend TCP
// session and the websocket registration.
func (h *GatewayHandler) Status(c *gin.Context) {
	clientID := domain.ClientID(c.Param("clientId"))

	connected := false
	if session, exists := h.backends.Session(clientID); exists {
		connected = session.Connected()
	}
	_, wsConnected := h.registry.Lookup(clientID)

	// A client missing locally may still hold a websocket on a sibling
	// instance.
	remote := false
	if !wsConnected && h.remote != nil {
		if online, err := h.remote.IsOnlineAnywhere(c.Request.Context(), clientID); err == nil {
			remote = online
		} else {
			h.logger.Debugw("remote presence lookup failed", "client_id", clientID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"clientId":  clientID,
		"connected": connected,
		"websocket": wsConnected,
		"remote":    remote,
	})
}

func (h *GatewayHandler) ListClients(c *gin.Context) {
	type clientInfo struct {
		ID        domain.ClientID `json:"id"`
		Connected bool            `json:"connected"`
	}

	clients := make([]clientInfo, 0)
	for _, id := range h.backends.ConnectedIDs() {
		clients = append(clients, clientInfo{ID: id, Connected: true})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"clients": clients,
	})
}
