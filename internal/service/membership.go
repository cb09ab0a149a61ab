package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/opentake/multicam-server-go/internal/errors"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
)

type JoinInput struct {
	SessionCode      string
	ExternalDeviceID string
	DeviceName       string
	AngleName        string
	Capabilities     *json.RawMessage
}

// MembershipService admits, tracks, and retires devices. Membership writes
// are single-row; a failure admitting one device never touches the session
// or other devices.
type MembershipService struct {
	registry   *SessionService
	deviceRepo repository.DeviceRepository
	publisher  events.Publisher
}

func NewMembershipService(
	registry *SessionService,
	deviceRepo repository.DeviceRepository,
	publisher events.Publisher,
) *MembershipService {
	return &MembershipService{
		registry:   registry,
		deviceRepo: deviceRepo,
		publisher:  publisher,
	}
}

// Join admits a camera device into a joinable session. Joinability is
// re-checked here because the session may have transitioned since the
// caller last saw it. A device rejoining with the external id it already
// holds in the session is reconnected rather than rejected.
func (s *MembershipService) Join(ctx context.Context, userID string, input JoinInput) (*model.Session, *model.Device, error) {
	if input.ExternalDeviceID == "" {
		return nil, nil, apperrors.MissingRequired("device_id")
	}
	if input.DeviceName == "" {
		return nil, nil, apperrors.MissingRequired("device_name")
	}

	session, err := s.registry.ResolveCode(ctx, input.SessionCode)
	if err != nil {
		return nil, nil, err
	}

	angleName := input.AngleName
	if angleName == "" {
		angleName = "Camera"
	}

	device, err := s.deviceRepo.Create(ctx, model.CreateDeviceParams{
		ID:               uuid.New().String(),
		SessionID:        session.ID,
		ExternalDeviceID: input.ExternalDeviceID,
		UserID:           userID,
		DisplayName:      input.DeviceName,
		Role:             model.DeviceRoleCamera,
		AngleLabel:       &angleName,
		Capabilities:     input.Capabilities,
	})
	if err != nil {
		if !repository.IsUniqueViolation(err) {
			return nil, nil, apperrors.Database(err)
		}

		var angle *string
		if input.AngleName != "" {
			angle = &input.AngleName
		}
		device, err = s.deviceRepo.Reconnect(ctx, session.ID, input.ExternalDeviceID, userID, input.DeviceName, angle, input.Capabilities)
		if err != nil {
			return nil, nil, apperrors.Database(err)
		}
		if device == nil {
			// The external id is taken by another user's device.
			return nil, nil, apperrors.Conflict("Device already joined this session")
		}
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("deviceId", device.ID).
		Str("angleName", angleName).
		Msg("device joined session")

	s.publishMembership(ctx, session.ID, device)

	return session, device, nil
}

// Heartbeat refreshes the device's liveness timestamp. A heartbeat racing a
// leave is expected; a missing device is a silent no-op.
func (s *MembershipService) Heartbeat(ctx context.Context, userID, sessionID, externalDeviceID string) error {
	device, err := s.deviceRepo.Heartbeat(ctx, sessionID, externalDeviceID, userID)
	if err != nil {
		return apperrors.Database(err)
	}
	if device == nil {
		log.Debug().
			Str("sessionId", sessionID).
			Str("deviceId", externalDeviceID).
			Msg("heartbeat for unknown device ignored")
		return nil
	}

	s.publishMembership(ctx, sessionID, device)
	return nil
}

// Leave marks the device disconnected. The row is retained for history and
// the operation is idempotent.
func (s *MembershipService) Leave(ctx context.Context, userID, sessionID, externalDeviceID string) error {
	device, err := s.deviceRepo.UpdateStatus(ctx, sessionID, externalDeviceID, userID, model.DeviceStatusDisconnected)
	if err != nil {
		return apperrors.Database(err)
	}
	if device == nil {
		return nil
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("deviceId", device.ID).
		Msg("device left session")

	s.publishMembership(ctx, sessionID, device)
	return nil
}

// UpdateDeviceStatus records a device's own status report
// (connected/ready/recording). Disconnection goes through Leave.
func (s *MembershipService) UpdateDeviceStatus(ctx context.Context, userID, sessionID, externalDeviceID string, status model.DeviceStatus) (*model.Device, error) {
	if !status.Reportable() {
		return nil, apperrors.InvalidInput("status", "must be connected, ready, or recording")
	}

	device, err := s.deviceRepo.UpdateStatus(ctx, sessionID, externalDeviceID, userID, status)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if device == nil {
		return nil, apperrors.NotFound("Device")
	}

	s.publishMembership(ctx, sessionID, device)
	return device, nil
}

// ListDevices returns the session roster in join order.
func (s *MembershipService) ListDevices(ctx context.Context, sessionID string) ([]model.Device, error) {
	devices, err := s.deviceRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return devices, nil
}

func (s *MembershipService) publishMembership(ctx context.Context, sessionID string, device *model.Device) {
	event, err := events.MembershipChanged(device)
	if err != nil {
		log.Error().Err(err).Msg("failed to build membership event")
		return
	}
	if err := s.publisher.Publish(ctx, sessionID, event); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish membership event")
	}
}
