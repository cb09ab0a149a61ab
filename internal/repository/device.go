package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opentake/multicam-server-go/internal/model"
)

type DeviceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Device, error)
	FindBySessionAndExternalID(ctx context.Context, sessionID, externalDeviceID string) (*model.Device, error)
	// ListBySession returns all devices for a session in join order.
	ListBySession(ctx context.Context, sessionID string) ([]model.Device, error)
	Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error)
	// Reconnect reactivates the caller's existing device row after a rejoin
	// with the same external device id. Nil angle/capabilities keep the
	// stored values. Returns nil when no owned row exists.
	Reconnect(ctx context.Context, sessionID, externalDeviceID, userID, displayName string, angleLabel *string, capabilities *json.RawMessage) (*model.Device, error)
	// Heartbeat refreshes last_seen on the owner's device row and returns
	// the refreshed row. A nil result is a tolerated no-op (device gone).
	Heartbeat(ctx context.Context, sessionID, externalDeviceID, userID string) (*model.Device, error)
	// UpdateStatus sets the device status, gated on ownership. Returns the
	// updated row, or nil when no row matched.
	UpdateStatus(ctx context.Context, sessionID, externalDeviceID, userID string, status model.DeviceStatus) (*model.Device, error)
	// MarkStale disconnects devices whose last_seen predates staleBefore and
	// returns the rows it changed so callers can publish membership events.
	MarkStale(ctx context.Context, staleBefore time.Time) ([]model.Device, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) DeviceRepository
}

type deviceRepo struct {
	db sqlxDB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) WithTx(tx *sqlx.Tx) DeviceRepository {
	return &deviceRepo{db: tx}
}

func (r *deviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		SELECT * FROM session_devices WHERE id = $1
	`, id)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) FindBySessionAndExternalID(ctx context.Context, sessionID, externalDeviceID string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		SELECT * FROM session_devices
		WHERE session_id = $1 AND external_device_id = $2
	`, sessionID, externalDeviceID)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.SelectContext(ctx, &devices, `
		SELECT * FROM session_devices
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	return devices, err
}

func (r *deviceRepo) Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		INSERT INTO session_devices
			(id, session_id, external_device_id, user_id, display_name, role, angle_label, status, capabilities, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'connected', $8, NOW())
		RETURNING *
	`, params.ID, params.SessionID, params.ExternalDeviceID, params.UserID,
		params.DisplayName, params.Role, params.AngleLabel, params.Capabilities)
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) Reconnect(ctx context.Context, sessionID, externalDeviceID, userID, displayName string, angleLabel *string, capabilities *json.RawMessage) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		UPDATE session_devices SET
			status = 'connected',
			display_name = $4,
			angle_label = COALESCE($5, angle_label),
			capabilities = COALESCE($6, capabilities),
			last_seen = NOW()
		WHERE session_id = $1 AND external_device_id = $2 AND user_id = $3
		RETURNING *
	`, sessionID, externalDeviceID, userID, displayName, angleLabel, capabilities)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) Heartbeat(ctx context.Context, sessionID, externalDeviceID, userID string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		UPDATE session_devices SET
			last_seen = NOW()
		WHERE session_id = $1 AND external_device_id = $2 AND user_id = $3
		RETURNING *
	`, sessionID, externalDeviceID, userID)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) UpdateStatus(ctx context.Context, sessionID, externalDeviceID, userID string, status model.DeviceStatus) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		UPDATE session_devices SET
			status = $4,
			last_seen = NOW()
		WHERE session_id = $1 AND external_device_id = $2 AND user_id = $3
		RETURNING *
	`, sessionID, externalDeviceID, userID, status)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) MarkStale(ctx context.Context, staleBefore time.Time) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.SelectContext(ctx, &devices, `
		UPDATE session_devices SET
			status = 'disconnected'
		WHERE status = ANY($1)
		AND last_seen IS NOT NULL
		AND last_seen < $2
		RETURNING *
	`, pq.Array([]string{
		string(model.DeviceStatusConnected),
		string(model.DeviceStatusReady),
		string(model.DeviceStatusRecording),
	}), staleBefore)
	return devices, err
}
