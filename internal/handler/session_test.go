package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/opentake/multicam-server-go/internal/config"
	"github.com/opentake/multicam-server-go/internal/database"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/middleware"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
	"github.com/opentake/multicam-server-go/internal/service"
)

// passTxRunner runs the transaction function directly against the mocks.
type passTxRunner struct{}

func (passTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, sessionID string, event events.Event) error {
	return nil
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindLatestByCode(ctx context.Context, code string) (*model.Session, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) SetMasterDevice(ctx context.Context, id string, deviceID string) error {
	args := m.Called(ctx, id, deviceID)
	return args.Error(0)
}

func (m *mockSessionRepo) UpdateStatusIf(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus) (*model.Session, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockDeviceRepo struct {
	mock.Mock
}

func (m *mockDeviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) FindBySessionAndExternalID(ctx context.Context, sessionID, externalDeviceID string) (*model.Device, error) {
	args := m.Called(ctx, sessionID, externalDeviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Device, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Reconnect(ctx context.Context, sessionID, externalDeviceID, userID, displayName string, angleLabel *string, capabilities *json.RawMessage) (*model.Device, error) {
	args := m.Called(ctx, sessionID, externalDeviceID, userID, displayName, angleLabel, capabilities)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Heartbeat(ctx context.Context, sessionID, externalDeviceID, userID string) (*model.Device, error) {
	args := m.Called(ctx, sessionID, externalDeviceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) UpdateStatus(ctx context.Context, sessionID, externalDeviceID, userID string, status model.DeviceStatus) (*model.Device, error) {
	args := m.Called(ctx, sessionID, externalDeviceID, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) MarkStale(ctx context.Context, staleBefore time.Time) ([]model.Device, error) {
	args := m.Called(ctx, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) WithTx(tx *sqlx.Tx) repository.DeviceRepository {
	return m
}

type mockRecordingRepo struct {
	mock.Mock
}

func (m *mockRecordingRepo) Create(ctx context.Context, params model.CreateSessionRecordingParams) (*model.SessionRecording, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionRecording), args.Error(1)
}

func (m *mockRecordingRepo) ListBySession(ctx context.Context, sessionID string) ([]model.SessionRecording, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SessionRecording), args.Error(1)
}

func (m *mockRecordingRepo) WithTx(tx *sqlx.Tx) repository.RecordingRepository {
	return m
}

type handlerFixture struct {
	sessionRepo   *mockSessionRepo
	deviceRepo    *mockDeviceRepo
	recordingRepo *mockRecordingRepo
	router        chi.Router
}

func newHandlerFixture() *handlerFixture {
	sessionRepo := new(mockSessionRepo)
	deviceRepo := new(mockDeviceRepo)
	recordingRepo := new(mockRecordingRepo)
	publisher := nopPublisher{}

	cfg := &config.Config{PublicBaseURL: "https://studio.example.com"}

	sessions := service.NewSessionService(passTxRunner{}, sessionRepo, deviceRepo, publisher)
	membership := service.NewMembershipService(sessions, deviceRepo, publisher)
	authority := service.NewAuthorityService(sessionRepo, deviceRepo, publisher)
	recordings := service.NewRecordingService(recordingRepo, deviceRepo, publisher)

	h := NewSessionHandler(cfg, sessions, membership, authority, recordings)

	router := chi.NewRouter()
	router.Mount("/v1/sessions", h.Routes())

	return &handlerFixture{
		sessionRepo:   sessionRepo,
		deviceRepo:    deviceRepo,
		recordingRepo: recordingRepo,
		router:        router,
	}
}

func withUser(req *http.Request, user *model.User) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, user))
}

func TestSessionHandler_Create(t *testing.T) {
	t.Run("returns 401 when no user in context", func(t *testing.T) {
		f := newHandlerFixture()

		body := bytes.NewBufferString(`{"deviceId": "phone-1"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns 400 when deviceId is missing", func(t *testing.T) {
		f := newHandlerFixture()

		body := bytes.NewBufferString(`{"deviceName": "iPhone"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions", body), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_REQUIRED")
	})

	t.Run("creates session and returns join url", func(t *testing.T) {
		f := newHandlerFixture()

		session := &model.Session{ID: "sess-1", SessionCode: "A1B2C3", Status: model.SessionStatusWaiting}
		master := &model.Device{ID: "dev-1", SessionID: "sess-1", Role: model.DeviceRoleMaster}

		f.sessionRepo.On("Create", mock.Anything, mock.Anything).Return(session, nil)
		f.deviceRepo.On("Create", mock.Anything, mock.Anything).Return(master, nil)
		f.sessionRepo.On("SetMasterDevice", mock.Anything, "sess-1", "dev-1").Return(nil)

		body := bytes.NewBufferString(`{"deviceId": "phone-1", "deviceName": "iPhone 15"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions", body), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "https://studio.example.com/studio?code=A1B2C3", resp["joinUrl"])
		f.sessionRepo.AssertExpectations(t)
	})
}

func TestSessionHandler_Join(t *testing.T) {
	t.Run("returns 409 when session is not joinable", func(t *testing.T) {
		f := newHandlerFixture()

		session := &model.Session{ID: "sess-1", SessionCode: "A1B2C3", Status: model.SessionStatusRecording}
		f.sessionRepo.On("FindLatestByCode", mock.Anything, "A1B2C3").Return(session, nil)

		body := bytes.NewBufferString(`{"sessionCode": "a1b2c3", "deviceId": "phone-2", "deviceName": "Pixel"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions/join", body), &model.User{ID: "user-2"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_JOINABLE")
	})

	t.Run("admits a camera device by normalized code", func(t *testing.T) {
		f := newHandlerFixture()

		session := &model.Session{ID: "sess-1", SessionCode: "A1B2C3", Status: model.SessionStatusWaiting}
		device := &model.Device{ID: "dev-2", SessionID: "sess-1", Role: model.DeviceRoleCamera}

		f.sessionRepo.On("FindLatestByCode", mock.Anything, "A1B2C3").Return(session, nil)
		f.deviceRepo.On("Create", mock.Anything, mock.Anything).Return(device, nil)

		body := bytes.NewBufferString(`{"sessionCode": " a1b2c3 ", "deviceId": "phone-2", "deviceName": "Pixel"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions/join", body), &model.User{ID: "user-2"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		f.sessionRepo.AssertExpectations(t)
		f.deviceRepo.AssertExpectations(t)
	})
}

func TestSessionHandler_Status(t *testing.T) {
	t.Run("returns 404 for unknown session", func(t *testing.T) {
		f := newHandlerFixture()

		f.sessionRepo.On("FindByID", mock.Anything, "missing").Return(nil, nil)

		req := withUser(httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns session with device roster", func(t *testing.T) {
		f := newHandlerFixture()

		session := &model.Session{ID: "sess-1", SessionCode: "A1B2C3", Status: model.SessionStatusReady}
		devices := []model.Device{
			{ID: "dev-1", Role: model.DeviceRoleMaster},
			{ID: "dev-2", Role: model.DeviceRoleCamera},
		}

		f.sessionRepo.On("FindByID", mock.Anything, "sess-1").Return(session, nil)
		f.deviceRepo.On("ListBySession", mock.Anything, "sess-1").Return(devices, nil)

		req := withUser(httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1", nil), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Session model.Session  `json:"session"`
			Devices []model.Device `json:"devices"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Devices, 2)
	})
}

func TestSessionHandler_ChangeStatus(t *testing.T) {
	t.Run("returns 403 when caller is not the master", func(t *testing.T) {
		f := newHandlerFixture()

		masterID := "dev-1"
		session := &model.Session{ID: "sess-1", Status: model.SessionStatusReady, MasterDeviceID: &masterID}
		camera := &model.Device{ID: "dev-2", SessionID: "sess-1", UserID: "user-2", Role: model.DeviceRoleCamera}

		f.sessionRepo.On("FindByID", mock.Anything, "sess-1").Return(session, nil)
		f.deviceRepo.On("FindBySessionAndExternalID", mock.Anything, "sess-1", "phone-2").Return(camera, nil)

		body := bytes.NewBufferString(`{"deviceId": "phone-2", "status": "recording"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/status", body), &model.User{ID: "user-2"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("applies a master transition", func(t *testing.T) {
		f := newHandlerFixture()

		masterID := "dev-1"
		session := &model.Session{ID: "sess-1", Status: model.SessionStatusReady, MasterDeviceID: &masterID}
		master := &model.Device{ID: "dev-1", SessionID: "sess-1", UserID: "user-1", Role: model.DeviceRoleMaster}
		updated := &model.Session{ID: "sess-1", Status: model.SessionStatusRecording, MasterDeviceID: &masterID}

		f.sessionRepo.On("FindByID", mock.Anything, "sess-1").Return(session, nil)
		f.deviceRepo.On("FindBySessionAndExternalID", mock.Anything, "sess-1", "phone-1").Return(master, nil)
		f.sessionRepo.On("UpdateStatusIf", mock.Anything, "sess-1", mock.Anything, model.SessionStatusRecording).Return(updated, nil)

		body := bytes.NewBufferString(`{"deviceId": "phone-1", "status": "recording"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/status", body), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "recording")
	})
}

func TestSessionHandler_QRCode(t *testing.T) {
	t.Run("returns a png of the join url", func(t *testing.T) {
		f := newHandlerFixture()

		session := &model.Session{ID: "sess-1", SessionCode: "A1B2C3", Status: model.SessionStatusWaiting}
		f.sessionRepo.On("FindByID", mock.Anything, "sess-1").Return(session, nil)
		f.deviceRepo.On("ListBySession", mock.Anything, "sess-1").Return([]model.Device{}, nil)

		req := withUser(httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/qr", nil), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	})
}

func TestSessionHandler_Recordings(t *testing.T) {
	t.Run("attaches a recording for the owning device", func(t *testing.T) {
		f := newHandlerFixture()

		device := &model.Device{ID: "dev-2", SessionID: "sess-1", UserID: "user-2", Role: model.DeviceRoleCamera}
		rec1 := &model.SessionRecording{ID: "rec-1", SessionID: "sess-1", DeviceID: "dev-2", ObjectKey: "sessions/sess-1/dev-2.mp4"}

		f.deviceRepo.On("FindBySessionAndExternalID", mock.Anything, "sess-1", "phone-2").Return(device, nil)
		f.recordingRepo.On("Create", mock.Anything, mock.Anything).Return(rec1, nil)

		body := bytes.NewBufferString(`{"deviceId": "phone-2", "objectKey": "sessions/sess-1/dev-2.mp4"}`)
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/recordings", body), &model.User{ID: "user-2"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		f.recordingRepo.AssertExpectations(t)
	})

	t.Run("lists recordings", func(t *testing.T) {
		f := newHandlerFixture()

		recs := []model.SessionRecording{
			{ID: "rec-1", SessionID: "sess-1"},
			{ID: "rec-2", SessionID: "sess-1"},
		}
		f.recordingRepo.On("ListBySession", mock.Anything, "sess-1").Return(recs, nil)

		req := withUser(httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/recordings", nil), &model.User{ID: "user-1"})
		rec := httptest.NewRecorder()

		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":2`)
	})
}
