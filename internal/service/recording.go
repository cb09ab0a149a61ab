package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/opentake/multicam-server-go/internal/errors"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
)

type AttachRecordingInput struct {
	ExternalDeviceID string
	ObjectKey        string
	AngleName        string
	IsPrimaryAngle   bool
	SyncOffsetMs     *int64
}

// RecordingService records completed device uploads against a session. The
// blob itself lives in external object storage; only the reference and the
// placeholder sync offset are kept here.
type RecordingService struct {
	recordingRepo repository.RecordingRepository
	deviceRepo    repository.DeviceRepository
	publisher     events.Publisher
}

func NewRecordingService(
	recordingRepo repository.RecordingRepository,
	deviceRepo repository.DeviceRepository,
	publisher events.Publisher,
) *RecordingService {
	return &RecordingService{
		recordingRepo: recordingRepo,
		deviceRepo:    deviceRepo,
		publisher:     publisher,
	}
}

func (s *RecordingService) Attach(ctx context.Context, userID, sessionID string, input AttachRecordingInput) (*model.SessionRecording, error) {
	if input.ExternalDeviceID == "" {
		return nil, apperrors.MissingRequired("device_id")
	}
	if input.ObjectKey == "" {
		return nil, apperrors.MissingRequired("object_key")
	}

	device, err := s.deviceRepo.FindBySessionAndExternalID(ctx, sessionID, input.ExternalDeviceID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if device == nil {
		return nil, apperrors.NotFound("Device")
	}
	if device.UserID != userID {
		return nil, apperrors.Forbidden("Device belongs to another user")
	}

	var angle *string
	if input.AngleName != "" {
		angle = &input.AngleName
	} else {
		angle = device.AngleLabel
	}

	rec, err := s.recordingRepo.Create(ctx, model.CreateSessionRecordingParams{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		DeviceID:       device.ID,
		ObjectKey:      input.ObjectKey,
		AngleLabel:     angle,
		IsPrimaryAngle: input.IsPrimaryAngle,
		SyncOffsetMs:   input.SyncOffsetMs,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("deviceId", device.ID).
		Str("objectKey", input.ObjectKey).
		Msg("recording attached")

	event, err := events.RecordingAdded(rec)
	if err != nil {
		log.Error().Err(err).Msg("failed to build recording event")
		return rec, nil
	}
	if err := s.publisher.Publish(ctx, sessionID, event); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish recording event")
	}

	return rec, nil
}

func (s *RecordingService) List(ctx context.Context, sessionID string) ([]model.SessionRecording, error) {
	recs, err := s.recordingRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return recs, nil
}
