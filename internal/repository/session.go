package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opentake/multicam-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindLatestByCode returns the newest session carrying the code,
	// regardless of status. Callers classify joinability themselves.
	FindLatestByCode(ctx context.Context, code string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	SetMasterDevice(ctx context.Context, id string, deviceID string) error
	// UpdateStatusIf applies a compare-and-swap status transition: the row is
	// only written if its current status is one of from. Returns nil when no
	// row matched (missing session or lost race).
	UpdateStatusIf(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus) (*model.Session, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sqlxDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM recording_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindLatestByCode(ctx context.Context, code string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM recording_sessions
		WHERE session_code = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, code)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO recording_sessions (id, session_code, owner_id, status, connection_type, metadata)
		VALUES ($1, $2, $3, 'waiting', $4, $5)
		RETURNING *
	`, params.ID, params.SessionCode, params.OwnerID, params.ConnectionType, params.Metadata)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) SetMasterDevice(ctx context.Context, id string, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recording_sessions SET
			master_device_id = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, deviceID)
	return err
}

func (r *sessionRepo) UpdateStatusIf(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus) (*model.Session, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE recording_sessions SET
			status = $2,
			started_at = CASE WHEN $2 = 'recording' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			ended_at = CASE WHEN $2 IN ('stopped', 'completed') THEN COALESCE(ended_at, NOW()) ELSE ended_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING *
	`, id, to, pq.Array(fromStrs))
	return HandleNotFound(&session, err)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
