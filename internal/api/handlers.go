package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvsoni1802/browser-bidi/internal/pool"
	"github.com/dhruvsoni1802/browser-bidi/internal/session"
)

// Handlers contains HTTP handlers for the API
type Handlers struct {
	sessionManager *session.Manager
	loadBalancer   *pool.LoadBalancer
}

// NewHandlers creates a new Handlers instance
func NewHandlers(manager *session.Manager, loadBalancer *pool.LoadBalancer) *Handlers {
	return &Handlers{
		sessionManager: manager,
		loadBalancer:   loadBalancer,
	}
}

// CreateSession handles POST /sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.AgentID == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "agent_id is required")
		return
	}

	// The manager picks the endpoint through the load balancer
	sess, err := h.sessionManager.CreateSession(r.Context(), req.AgentID, req.SessionName)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	response := CreateSessionResponse{
		SessionID:   sess.ID,
		SessionName: sess.Name(),
		AgentID:     sess.AgentID,
		UserContext: sess.UserContext.String(),
		Endpoint:    sess.Endpoint,
		CreatedAt:   sess.CreatedAt,
	}

	// Return 201 Created
	writeJSON(w, http.StatusCreated, response)
}

// DestroySession handles DELETE /sessions/{id}
func (h *Handlers) DestroySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := h.sessionManager.DestroySession(r.Context(), sessionID); err != nil {
		writeManagerError(w, r, err)
		return
	}

	// Return 204 No Content
	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	sess, err := h.sessionManager.GetSession(sessionID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	info := sess.Info()
	response := GetSessionResponse{
		SessionID:    info.ID,
		SessionName:  info.Name,
		AgentID:      info.AgentID,
		Endpoint:     info.Endpoint,
		BiDiSession:  info.BiDiSession,
		UserContext:  info.UserContext,
		Contexts:     info.Contexts,
		ContextCount: len(info.Contexts),
		CreatedAt:    info.CreatedAt,
		LastActivity: info.LastActivity,
		Status:       info.Status,
	}

	writeJSON(w, http.StatusOK, response)
}

// ListSessions handles GET /sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionManager.ListSessions()

	sessionInfos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := sess.Info()
		sessionInfos = append(sessionInfos, SessionInfo{
			SessionID:    info.ID,
			SessionName:  info.Name,
			AgentID:      info.AgentID,
			Endpoint:     info.Endpoint,
			ContextCount: len(info.Contexts),
			CreatedAt:    info.CreatedAt,
			LastActivity: info.LastActivity,
			Status:       info.Status,
		})
	}

	response := ListSessionsResponse{
		Sessions: sessionInfos,
		Count:    len(sessionInfos),
	}

	writeJSON(w, http.StatusOK, response)
}

// ListAgentSessions handles GET /agents/{agentId}/sessions
func (h *Handlers) ListAgentSessions(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	infos, err := h.sessionManager.ListAgentSessions(r.Context(), agentID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	summaries := make([]SessionSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, SessionSummary{
			SessionID:    info.ID,
			SessionName:  info.Name,
			Status:       info.Status,
			ContextCount: len(info.Contexts),
			CreatedAt:    info.CreatedAt,
			LastActivity: info.LastActivity,
		})
	}

	writeJSON(w, http.StatusOK, ListAgentSessionsResponse{
		AgentID:  agentID,
		Sessions: summaries,
		Count:    len(summaries),
	})
}

// ResumeSession handles POST /sessions/resume. An unknown name creates a
// fresh session under that name.
func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	var req ResumeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.AgentID == "" || req.SessionName == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "agent_id and session_name are required")
		return
	}

	resumed := true
	sess, err := h.sessionManager.ResumeSessionByName(r.Context(), req.AgentID, req.SessionName)
	if errors.Is(err, session.ErrSessionNotFound) {
		resumed = false
		sess, err = h.sessionManager.CreateSession(r.Context(), req.AgentID, req.SessionName)
	}
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resumeResponse(sess, resumed))
}

// ResumeSessionByID handles POST /sessions/{id}/resume
func (h *Handlers) ResumeSessionByID(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	sess, err := h.sessionManager.ResumeSession(r.Context(), sessionID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resumeResponse(sess, true))
}

func resumeResponse(sess *session.Session, resumed bool) ResumeSessionResponse {
	info := sess.Info()
	return ResumeSessionResponse{
		SessionID:   info.ID,
		SessionName: info.Name,
		Resumed:     resumed,
		Contexts:    info.Contexts,
		CreatedAt:   info.CreatedAt,
	}
}

// RenameSession handles PUT /sessions/{id}/rename
func (h *Handlers) RenameSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req RenameSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.SessionName == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "session_name is required")
		return
	}

	if err := h.sessionManager.RenameSession(r.Context(), sessionID, req.SessionName); err != nil {
		writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "session renamed to " + req.SessionName})
}

// CreateContext handles POST /sessions/{id}/contexts
func (h *Handlers) CreateContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req CreateContextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	contextID, err := h.sessionManager.CreateContext(r.Context(), sessionID, req.URL)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	response := ContextResponse{SessionID: sessionID, ContextID: contextID}
	if sess, err := h.sessionManager.GetSession(sessionID); err == nil {
		response.URL, _ = sess.ContextURL(contextID)
	}

	writeJSON(w, http.StatusCreated, response)
}

// CloseContext handles DELETE /sessions/{id}/contexts/{contextId}
func (h *Handlers) CloseContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	contextID := chi.URLParam(r, "contextId")

	if err := h.sessionManager.CloseContext(r.Context(), sessionID, contextID); err != nil {
		writeManagerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Navigate handles POST /sessions/{id}/navigate
func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req NavigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "URL is required")
		return
	}

	result, err := h.sessionManager.Navigate(r.Context(), sessionID, req.ContextID, req.URL)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	response := NavigateResponse{
		SessionID:  sessionID,
		ContextID:  result.ContextID,
		URL:        result.URL,
		Navigation: result.Navigation,
	}

	writeJSON(w, http.StatusOK, response)
}

// ExecuteJS handles POST /sessions/{id}/execute
func (h *Handlers) ExecuteJS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req ExecuteJSRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.ContextID == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "context_id is required")
		return
	}
	if req.Script == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "script is required")
		return
	}

	result, err := h.sessionManager.Evaluate(r.Context(), sessionID, req.ContextID, req.Script)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	response := ExecuteJSResponse{
		SessionID: sessionID,
		ContextID: req.ContextID,
		Result:    result,
	}

	writeJSON(w, http.StatusOK, response)
}

// CaptureScreenshot handles POST /sessions/{id}/screenshot
func (h *Handlers) CaptureScreenshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req ScreenshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.ContextID == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "context_id is required")
		return
	}

	screenshotBytes, err := h.sessionManager.CaptureScreenshot(r.Context(), sessionID, req.ContextID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	response := ScreenshotResponse{
		SessionID:  sessionID,
		ContextID:  req.ContextID,
		Screenshot: base64.StdEncoding.EncodeToString(screenshotBytes),
		Format:     "png",
		Size:       len(screenshotBytes),
	}

	writeJSON(w, http.StatusOK, response)
}

// GetPageContent handles GET /sessions/{id}/contexts/{contextId}/content
func (h *Handlers) GetPageContent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	contextID := chi.URLParam(r, "contextId")

	content, err := h.sessionManager.GetPageContent(r.Context(), sessionID, contextID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	response := GetPageContentResponse{
		SessionID: sessionID,
		ContextID: contextID,
		Content:   content,
		Length:    len(content),
	}

	writeJSON(w, http.StatusOK, response)
}

// SnapshotCookies handles POST /sessions/{id}/cookies/snapshot
func (h *Handlers) SnapshotCookies(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	cookies, err := h.sessionManager.SnapshotCookies(r.Context(), sessionID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CookiesResponse{
		SessionID: sessionID,
		Cookies:   cookies,
		Count:     len(cookies),
	})
}

// RestoreCookies handles POST /sessions/{id}/cookies/restore
func (h *Handlers) RestoreCookies(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req RestoreCookiesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	restored, err := h.sessionManager.RestoreCookies(r.Context(), sessionID, req.Cookies)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RestoreCookiesResponse{SessionID: sessionID, Restored: restored})
}

// PoolMetrics handles GET /pool
func (h *Handlers) PoolMetrics(w http.ResponseWriter, r *http.Request) {
	if h.loadBalancer == nil {
		writeJSON(w, http.StatusOK, pool.PoolMetrics{Endpoints: []pool.EndpointMetrics{}})
		return
	}
	writeJSON(w, http.StatusOK, h.loadBalancer.GetMetrics())
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessionManager.GetSessionCount(),
	})
}
