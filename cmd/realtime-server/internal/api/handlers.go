// Package api provides HTTP handlers for the realtime server REST API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/adapters/memory"
	"github.com/coregx/realtime/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	publisher  *realtime.PublisherService
	queue      *realtime.DataChangeQueue
	revocation *realtime.TokenRevocation
	activity   *realtime.SessionActivityLog
	sessions   *memory.SessionDirectory
	users      *memory.UserStore
	transport  *memory.LoopbackTransport
	logger     realtime.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	publisher *realtime.PublisherService,
	queue *realtime.DataChangeQueue,
	revocation *realtime.TokenRevocation,
	activity *realtime.SessionActivityLog,
	sessions *memory.SessionDirectory,
	users *memory.UserStore,
	transport *memory.LoopbackTransport,
	logger realtime.Logger,
) *Handler {
	return &Handler{
		publisher:  publisher,
		queue:      queue,
		revocation: revocation,
		activity:   activity,
		sessions:   sessions,
		users:      users,
		transport:  transport,
		logger:     logger,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleSessions handles POST /api/v1/sessions
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req ConnectSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), realtime.ErrCodeValidation)
		return
	}

	session := &model.Session{
		ID:       req.ID,
		Token:    req.Token,
		IsToken:  req.IsToken,
		Protocol: req.Protocol,
		Info:     model.SessionInfo{ClusterName: req.ClusterName},
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if req.TokenTTL != "" {
		ttl, _ := time.ParseDuration(req.TokenTTL)
		session.TokenTTL = ttl
	}
	if req.Username != "" {
		groups := make(map[string]model.GroupLink, len(req.Groups))
		for _, name := range req.Groups {
			groups[name] = model.GroupLink{LinkedAt: time.Now()}
		}
		user := &model.User{
			Username: req.Username,
			Groups:   groups,
		}
		user.PermissionSetKey = model.ComputePermissionSetKey(user.GroupNames())
		session.User = user
		h.users.UpsertUser(user)
	}

	h.sessions.Connect(session)
	h.respondSuccess(w, http.StatusCreated, session, "Session connected")
}

// HandleSessionByID handles DELETE /api/v1/sessions/:id and
// GET /api/v1/sessions/:id/messages
func (h *Handler) HandleSessionByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) < 4 {
		h.respondError(w, http.StatusBadRequest, "Invalid session ID", "INVALID_ID")
		return
	}
	sessionID := parts[3]

	switch {
	case r.Method == http.MethodDelete && len(parts) == 4:
		if err := h.sessions.DisconnectSessions(r.Context(), sessionID, "client-disconnect"); err != nil {
			h.logger.Errorf("Failed to disconnect session: %v", err)
			h.respondError(w, http.StatusInternalServerError, "Failed to disconnect session", "DISCONNECT_ERROR")
			return
		}
		h.respondSuccess(w, http.StatusOK, nil, "Session disconnected")

	case r.Method == http.MethodGet && len(parts) == 5 && parts[4] == "messages":
		h.respondSuccess(w, http.StatusOK, h.transport.Drain(sessionID), "")

	default:
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}
}

// HandlePublish handles POST /api/v1/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), realtime.ErrCodeValidation)
		return
	}

	session, err := h.sessions.GetSession(req.SessionID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Publishing session not found", "NOT_FOUND")
		return
	}

	message := h.buildMessage(&req, session)

	receipt, err := h.publisher.ProcessPublish(r.Context(), message)
	if err != nil {
		h.logger.Errorf("Failed to publish message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to publish message", "PUBLISH_ERROR")
		return
	}

	if err := h.activity.Update(session, req.Path, message.Request.Action); err != nil {
		h.logger.Warnf("Failed to record session activity: %v", err)
	}

	if receipt == nil {
		// transactional publish completed synchronously
		h.respondSuccess(w, http.StatusOK, message.Response, "Message published")
		return
	}
	h.respondSuccess(w, http.StatusAccepted, receipt, "Message accepted")
}

// buildMessage assembles the engine message envelope for one publish request.
func (h *Handler) buildMessage(req *PublishRequest, session *model.Session) *model.Message {
	action := req.Action
	if action == "" {
		action = "set"
	}

	options := &model.PublishOptions{
		PublishResults: req.PublishResults,
		NoCluster:      req.NoCluster,
		Meta:           req.Meta,
	}
	if req.Consistency != nil {
		level := model.Consistency(*req.Consistency)
		options.Consistency = &level
	}

	recipients := make([]model.Recipient, 0, len(req.Recipients))
	for _, in := range req.Recipients {
		recipient := model.Recipient{
			SessionID:   in.SessionID,
			ClusterName: in.ClusterName,
			Path:        req.Path,
			Action:      action,
			Options: model.RecipientOptions{
				Merge: in.Merge,
				Depth: in.Depth,
			},
		}
		if target, err := h.sessions.GetSession(in.SessionID); err == nil {
			recipient.Session = target
		}
		recipients = append(recipients, recipient)
	}

	return &model.Message{
		Request: model.Request{
			Path:    req.Path,
			Action:  action,
			EventID: req.EventID,
			Data:    req.Data,
			Options: options,
		},
		Session:    session,
		Protocol:   session.Protocol,
		Recipients: recipients,
	}
}

// HandleAcknowledge handles POST /api/v1/acknowledge
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), realtime.ErrCodeValidation)
		return
	}

	message := &model.Message{
		Request: model.Request{
			Data:      req.PublicationID,
			SessionID: req.SessionID,
		},
	}
	h.publisher.ProcessAcknowledge(r.Context(), message)
	h.respondSuccess(w, http.StatusOK, nil, "Acknowledged")
}

// HandleSecurityChange handles POST /api/v1/security/changes
func (h *Handler) HandleSecurityChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req SecurityChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), realtime.ErrCodeValidation)
		return
	}

	change := model.SecurityChange{
		Kind:        model.ChangeKind(req.Kind),
		Token:       req.Token,
		Reason:      req.Reason,
		Username:    req.Username,
		Path:        req.Path,
		GroupName:   req.GroupName,
		Groups:      req.Groups,
		Permissions: req.Permissions,
		Replicated:  req.Replicated,
	}
	if req.TTL != "" {
		ttl, _ := time.ParseDuration(req.TTL)
		change.TTL = ttl
	}
	if req.SessionID != "" {
		if session, err := h.sessions.GetSession(req.SessionID); err == nil {
			change.Session = session
		}
	}

	affected, err := h.queue.DataChanged(r.Context(), change)
	if err != nil {
		h.logger.Errorf("Failed to apply security change: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to apply security change", "SECURITY_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, affected, "")
}

// HandleRevokeToken handles POST /api/v1/tokens/revoke
func (h *Handler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req RevokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), realtime.ErrCodeValidation)
		return
	}

	session, err := h.sessions.GetSession(req.SessionID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Session not found", "NOT_FOUND")
		return
	}

	if err := h.revocation.RevokeToken(r.Context(), session, req.Reason); err != nil {
		h.logger.Errorf("Failed to revoke token: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to revoke token", "REVOKE_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, nil, "Token revoked")
}

// HandleRestoreToken handles POST /api/v1/tokens/restore
func (h *Handler) HandleRestoreToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req RestoreTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), realtime.ErrCodeValidation)
		return
	}

	if err := h.revocation.RestoreToken(r.Context(), req.Token); err != nil {
		h.logger.Errorf("Failed to restore token: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to restore token", "RESTORE_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, nil, "Token restored")
}

// HandleCheckToken handles GET /api/v1/tokens/check?token=...
func (h *Handler) HandleCheckToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		h.respondError(w, http.StatusBadRequest, "token query parameter is required", realtime.ErrCodeValidation)
		return
	}

	ok, reason, err := h.revocation.CheckRevocation(r.Context(), token)
	if err != nil {
		h.logger.Errorf("Failed to check token: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to check token", "CHECK_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, map[string]interface{}{
		"ok":     ok,
		"reason": reason,
	}, "")
}

// HandleActivity handles GET /api/v1/activity
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	activities, err := h.activity.List()
	if err != nil {
		h.logger.Errorf("Failed to list session activity: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list session activity", "ACTIVITY_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, activities, "")
}

// HandleStats handles GET /api/v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	stats := h.publisher.Stats()
	h.respondSuccess(w, http.StatusOK, map[string]interface{}{
		"attempted":      stats.Attempted,
		"failed":         stats.Failed,
		"unacknowledged": stats.Unacknowledged,
		"inFlight":       h.publisher.InFlight(),
		"sessions":       h.sessions.Len(),
	}, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}
	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// splitPath splits a URL path into its non-empty segments.
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
