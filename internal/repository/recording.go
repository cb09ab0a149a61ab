package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/opentake/multicam-server-go/internal/model"
)

type RecordingRepository interface {
	Create(ctx context.Context, params model.CreateSessionRecordingParams) (*model.SessionRecording, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.SessionRecording, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RecordingRepository
}

type recordingRepo struct {
	db sqlxDB
}

func NewRecordingRepository(db *sqlx.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

func (r *recordingRepo) WithTx(tx *sqlx.Tx) RecordingRepository {
	return &recordingRepo{db: tx}
}

func (r *recordingRepo) Create(ctx context.Context, params model.CreateSessionRecordingParams) (*model.SessionRecording, error) {
	var rec model.SessionRecording
	err := r.db.GetContext(ctx, &rec, `
		INSERT INTO session_recordings
			(id, session_id, device_id, object_key, angle_label, is_primary_angle, sync_offset_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ID, params.SessionID, params.DeviceID, params.ObjectKey,
		params.AngleLabel, params.IsPrimaryAngle, params.SyncOffsetMs)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepo) ListBySession(ctx context.Context, sessionID string) ([]model.SessionRecording, error) {
	var recs []model.SessionRecording
	err := r.db.SelectContext(ctx, &recs, `
		SELECT * FROM session_recordings
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	return recs, err
}
