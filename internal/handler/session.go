package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/opentake/multicam-server-go/internal/audit"
	"github.com/opentake/multicam-server-go/internal/config"
	apperrors "github.com/opentake/multicam-server-go/internal/errors"
	"github.com/opentake/multicam-server-go/internal/middleware"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/service"
)

const qrImageSize = 256

type SessionHandler struct {
	cfg        *config.Config
	sessions   *service.SessionService
	membership *service.MembershipService
	authority  *service.AuthorityService
	recordings *service.RecordingService
}

func NewSessionHandler(
	cfg *config.Config,
	sessions *service.SessionService,
	membership *service.MembershipService,
	authority *service.AuthorityService,
	recordings *service.RecordingService,
) *SessionHandler {
	return &SessionHandler{
		cfg:        cfg,
		sessions:   sessions,
		membership: membership,
		authority:  authority,
		recordings: recordings,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Post("/join", h.Join)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/status", h.ChangeStatus)
		r.Post("/leave", h.Leave)
		r.Post("/heartbeat", h.Heartbeat)
		r.Post("/device-status", h.DeviceStatus)
		r.Post("/recordings", h.AttachRecording)
		r.Get("/recordings", h.ListRecordings)
		r.Get("/qr", h.QRCode)
	})

	return r
}

// POST /v1/sessions
// Creates a session with a fresh join code; the caller becomes the master.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		DeviceID       string           `json:"deviceId"`
		DeviceName     string           `json:"deviceName"`
		ConnectionType string           `json:"connectionType"`
		Capabilities   *json.RawMessage `json:"capabilities"`
		Metadata       *json.RawMessage `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	session, device, err := h.sessions.Create(r.Context(), user.ID, service.CreateSessionInput{
		ExternalDeviceID: req.DeviceID,
		DeviceName:       req.DeviceName,
		ConnectionType:   model.ConnectionType(req.ConnectionType),
		Capabilities:     req.Capabilities,
		Metadata:         req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		UserID:    user.ID,
		SessionID: session.ID,
		DeviceID:  device.ID,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"session": session,
		"device":  device,
		"joinUrl": h.cfg.JoinURL(session.SessionCode),
	})
}

// POST /v1/sessions/join
// Admits a camera device by join code.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		SessionCode  string           `json:"sessionCode"`
		DeviceID     string           `json:"deviceId"`
		DeviceName   string           `json:"deviceName"`
		AngleName    string           `json:"angleName"`
		Capabilities *json.RawMessage `json:"capabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	session, device, err := h.membership.Join(r.Context(), user.ID, service.JoinInput{
		SessionCode:      req.SessionCode,
		ExternalDeviceID: req.DeviceID,
		DeviceName:       req.DeviceName,
		AngleName:        req.AngleName,
		Capabilities:     req.Capabilities,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionJoin,
		UserID:    user.ID,
		SessionID: session.ID,
		DeviceID:  device.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"device":  device,
	})
}

// GET /v1/sessions/{sessionID}
// Returns the session row and its device roster.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := h.sessions.Status(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/sessions/{sessionID}/status
// Master-only session state transition.
func (h *SessionHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		DeviceID string `json:"deviceId"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.DeviceID == "" {
		writeError(w, apperrors.MissingRequired("device_id"))
		return
	}

	session, err := h.authority.RequestStatusChange(r.Context(), user.ID, sessionID, req.DeviceID, model.SessionStatus(req.Status))
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeForbidden {
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventStatusDenied,
				UserID:    user.ID,
				SessionID: sessionID,
				Details:   map[string]interface{}{"requestedStatus": req.Status},
			})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventStatusChange,
		UserID:    user.ID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"status": req.Status},
	})

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// POST /v1/sessions/{sessionID}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deviceId is required"})
		return
	}

	if err := h.membership.Leave(r.Context(), user.ID, sessionID, req.DeviceID); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionLeave,
		UserID:    user.ID,
		SessionID: sessionID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /v1/sessions/{sessionID}/heartbeat
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deviceId is required"})
		return
	}

	if err := h.membership.Heartbeat(r.Context(), user.ID, sessionID, req.DeviceID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /v1/sessions/{sessionID}/device-status
// A device reporting its own readiness, not the session transition.
func (h *SessionHandler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		DeviceID string `json:"deviceId"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deviceId is required"})
		return
	}

	device, err := h.membership.UpdateDeviceStatus(r.Context(), user.ID, sessionID, req.DeviceID, model.DeviceStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"device": device})
}

// POST /v1/sessions/{sessionID}/recordings
func (h *SessionHandler) AttachRecording(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		DeviceID       string `json:"deviceId"`
		ObjectKey      string `json:"objectKey"`
		AngleName      string `json:"angleName"`
		IsPrimaryAngle bool   `json:"isPrimaryAngle"`
		SyncOffsetMs   *int64 `json:"syncOffsetMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	rec, err := h.recordings.Attach(r.Context(), user.ID, sessionID, service.AttachRecordingInput{
		ExternalDeviceID: req.DeviceID,
		ObjectKey:        req.ObjectKey,
		AngleName:        req.AngleName,
		IsPrimaryAngle:   req.IsPrimaryAngle,
		SyncOffsetMs:     req.SyncOffsetMs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"recording": rec})
}

// GET /v1/sessions/{sessionID}/recordings
func (h *SessionHandler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	recs, err := h.recordings.List(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recordings": recs,
		"total":      len(recs),
	})
}

// GET /v1/sessions/{sessionID}/qr
// PNG QR code of the join URL, for scanning from the master's screen.
func (h *SessionHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := h.sessions.Status(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	png, err := qrcode.Encode(h.cfg.JoinURL(result.Session.SessionCode), qrcode.Medium, qrImageSize)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to encode qr code")
		writeError(w, apperrors.Internal("Failed to generate QR code"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
