package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/opentake/multicam-server-go/internal/database"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
)

// passTxRunner runs the transaction function directly against the mocks.
type passTxRunner struct{}

func (passTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	byType map[string]int
	last   map[string]events.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{
		byType: make(map[string]int),
		last:   make(map[string]events.Event),
	}
}

func (p *capturePublisher) Publish(ctx context.Context, sessionID string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byType[event.Type]++
	p.last[event.Type] = event
	return nil
}

func (p *capturePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byType[eventType]
}

// Mock session repository
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

// Mock device repository
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

// Mock recording repository
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
