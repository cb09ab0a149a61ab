package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/opentake/multicam-server-go/internal/errors"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
)

// allowedSources maps each target status to the statuses it may be entered
// from. Anything absent is unreachable by request.
var allowedSources = map[model.SessionStatus][]model.SessionStatus{
	model.SessionStatusReady:     {model.SessionStatusWaiting},
	model.SessionStatusRecording: {model.SessionStatusWaiting, model.SessionStatusReady},
	model.SessionStatusStopped:   {model.SessionStatusRecording},
	model.SessionStatusCompleted: {model.SessionStatusStopped},
}

// AuthorityService gates session-wide state transitions. Only the master
// device may command them, and the write itself is a compare-and-swap so
// two racing requests cannot both succeed.
type AuthorityService struct {
	sessionRepo repository.SessionRepository
	deviceRepo  repository.DeviceRepository
	publisher   events.Publisher
}

func NewAuthorityService(
	sessionRepo repository.SessionRepository,
	deviceRepo repository.DeviceRepository,
	publisher events.Publisher,
) *AuthorityService {
	return &AuthorityService{
		sessionRepo: sessionRepo,
		deviceRepo:  deviceRepo,
		publisher:   publisher,
	}
}

// RequestStatusChange validates the caller's authority and applies the
// transition. started_at is stamped entering recording, ended_at entering
// stopped or completed.
func (s *AuthorityService) RequestStatusChange(ctx context.Context, userID, sessionID, externalDeviceID string, target model.SessionStatus) (*model.Session, error) {
	from, ok := allowedSources[target]
	if !ok {
		return nil, apperrors.InvalidInput("status", "must be ready, recording, stopped, or completed")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	device, err := s.deviceRepo.FindBySessionAndExternalID(ctx, sessionID, externalDeviceID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if device == nil || device.UserID != userID {
		return nil, apperrors.Forbidden("Only the master device may change session status")
	}
	if session.MasterDeviceID == nil || device.ID != *session.MasterDeviceID {
		return nil, apperrors.Forbidden("Only the master device may change session status")
	}

	updated, err := s.sessionRepo.UpdateStatusIf(ctx, sessionID, from, target)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		// CAS matched no row: the session moved under us (or vanished).
		// Re-read to classify.
		current, err := s.sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if current == nil {
			return nil, apperrors.NotFound("Session")
		}
		return nil, apperrors.InvalidTransition(string(current.Status), string(target))
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("from", string(session.Status)).
		Str("to", string(updated.Status)).
		Msg("session status changed")

	s.publishStatus(ctx, updated)

	return updated, nil
}

func (s *AuthorityService) publishStatus(ctx context.Context, session *model.Session) {
	event, err := events.SessionStatusChanged(session)
	if err != nil {
		log.Error().Err(err).Msg("failed to build status event")
		return
	}
	if err := s.publisher.Publish(ctx, session.ID, event); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to publish status event")
	}
}
