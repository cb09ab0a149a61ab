package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/opentake/multicam-server-go/internal/config"
	"github.com/opentake/multicam-server-go/internal/database"
	apperrors "github.com/opentake/multicam-server-go/internal/errors"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
	"github.com/opentake/multicam-server-go/internal/util"
)

// TxRunner executes a function inside a database transaction.
// *database.DB satisfies it; tests substitute a pass-through.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

var _ TxRunner = (*database.DB)(nil)

type CreateSessionInput struct {
	ExternalDeviceID string
	DeviceName       string
	ConnectionType   model.ConnectionType
	Capabilities     *json.RawMessage
	Metadata         *json.RawMessage
}

type SessionStatusResult struct {
	Session *model.Session `json:"session"`
	Devices []model.Device `json:"devices"`
}

// SessionService is the session registry: it creates sessions with join
// codes and resolves codes for joining devices.
type SessionService struct {
	tx          TxRunner
	sessionRepo repository.SessionRepository
	deviceRepo  repository.DeviceRepository
	publisher   events.Publisher
}

func NewSessionService(
	tx TxRunner,
	sessionRepo repository.SessionRepository,
	deviceRepo repository.DeviceRepository,
	publisher events.Publisher,
) *SessionService {
	return &SessionService{
		tx:          tx,
		sessionRepo: sessionRepo,
		deviceRepo:  deviceRepo,
		publisher:   publisher,
	}
}

// Create inserts the session, its master device, and the master link in a
// single transaction, so no session is ever observable without a master.
// Code collisions with non-terminal sessions are retried with a fresh code.
func (s *SessionService) Create(ctx context.Context, userID string, input CreateSessionInput) (*model.Session, *model.Device, error) {
	if input.ExternalDeviceID == "" {
		return nil, nil, apperrors.MissingRequired("device_id")
	}

	deviceName := input.DeviceName
	if deviceName == "" {
		deviceName = "Master Device"
	}

	connType := input.ConnectionType
	if connType == "" {
		connType = model.ConnectionTypeInternet
	}

	var (
		session *model.Session
		device  *model.Device
	)

	for attempt := 0; attempt < config.SessionCodeMaxAttempts; attempt++ {
		code := generateSessionCode()

		err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			sessionRepo := s.sessionRepo.WithTx(tx)
			deviceRepo := s.deviceRepo.WithTx(tx)

			created, err := sessionRepo.Create(ctx, model.CreateSessionParams{
				ID:             uuid.New().String(),
				SessionCode:    code,
				OwnerID:        userID,
				ConnectionType: connType,
				Metadata:       input.Metadata,
			})
			if err != nil {
				return err
			}

			master, err := deviceRepo.Create(ctx, model.CreateDeviceParams{
				ID:               uuid.New().String(),
				SessionID:        created.ID,
				ExternalDeviceID: input.ExternalDeviceID,
				UserID:           userID,
				DisplayName:      deviceName,
				Role:             model.DeviceRoleMaster,
				Capabilities:     input.Capabilities,
			})
			if err != nil {
				return err
			}

			if err := sessionRepo.SetMasterDevice(ctx, created.ID, master.ID); err != nil {
				return err
			}

			created.MasterDeviceID = &master.ID
			session = created
			device = master
			return nil
		})

		if err == nil {
			break
		}

		if repository.IsUniqueViolation(err) {
			log.Warn().
				Str("code", util.MaskCode(code)).
				Int("attempt", attempt+1).
				Msg("session code collision, regenerating")
			session = nil
			device = nil
			continue
		}

		return nil, nil, apperrors.Database(err)
	}

	if session == nil {
		return nil, nil, apperrors.New(apperrors.ErrCodeDatabase, "Failed to allocate a unique session code")
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("code", util.MaskCode(session.SessionCode)).
		Str("masterDeviceId", device.ID).
		Msg("session created")

	s.publishMembership(ctx, session.ID, device)

	return session, device, nil
}

// ResolveCode maps a normalized join code to its session. Codes resolve
// case-insensitively and only waiting/ready sessions are joinable.
func (s *SessionService) ResolveCode(ctx context.Context, code string) (*model.Session, error) {
	normalized := NormalizeSessionCode(code)
	if !ValidSessionCode(normalized) {
		return nil, apperrors.InvalidInput("session_code", "must be 6 alphanumeric characters")
	}

	session, err := s.sessionRepo.FindLatestByCode(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if !session.Status.Joinable() {
		return nil, apperrors.NotJoinable(string(session.Status))
	}

	return session, nil
}

// Status returns the session and its device roster in join order. The
// roster is a restartable snapshot; liveness flows through the change feed.
func (s *SessionService) Status(ctx context.Context, sessionID string) (*SessionStatusResult, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	devices, err := s.deviceRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	return &SessionStatusResult{Session: session, Devices: devices}, nil
}

func (s *SessionService) publishMembership(ctx context.Context, sessionID string, device *model.Device) {
	event, err := events.MembershipChanged(device)
	if err != nil {
		log.Error().Err(err).Msg("failed to build membership event")
		return
	}
	if err := s.publisher.Publish(ctx, sessionID, event); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish membership event")
	}
}
