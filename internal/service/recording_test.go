package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opentake/multicam-server-go/internal/errors"
	"github.com/opentake/multicam-server-go/internal/events"
	"github.com/opentake/multicam-server-go/internal/model"
)

func TestRecordingService_Attach(t *testing.T) {
	t.Run("attaches upload for owned device", func(t *testing.T) {
		recordingRepo := new(mockRecordingRepo)
		deviceRepo := new(mockDeviceRepo)
		pub := newCapturePublisher()

		angle := "Wide Shot"
		deviceRepo.On("FindBySessionAndExternalID", mock.Anything, "sess-1", "phone-2").Return(&model.Device{
			ID:         "dev-2",
			UserID:     "user-2",
			AngleLabel: &angle,
		}, nil)

		offset := int64(40)
		recordingRepo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateSessionRecordingParams) bool {
			return p.SessionID == "sess-1" &&
				p.DeviceID == "dev-2" &&
				p.ObjectKey == "recordings/sess-1/take1.webm" &&
				p.AngleLabel != nil && *p.AngleLabel == "Wide Shot"
		})).Return(&model.SessionRecording{
			ID:           "rec-1",
			SessionID:    "sess-1",
			DeviceID:     "dev-2",
			ObjectKey:    "recordings/sess-1/take1.webm",
			SyncOffsetMs: &offset,
		}, nil)

		svc := NewRecordingService(recordingRepo, deviceRepo, pub)
		rec, err := svc.Attach(context.Background(), "user-2", "sess-1", AttachRecordingInput{
			ExternalDeviceID: "phone-2",
			ObjectKey:        "recordings/sess-1/take1.webm",
			SyncOffsetMs:     &offset,
		})

		require.NoError(t, err)
		assert.Equal(t, "rec-1", rec.ID)
		assert.Equal(t, 1, pub.count(events.TypeRecordingAdded))
	})

	t.Run("rejects another user's device", func(t *testing.T) {
		recordingRepo := new(mockRecordingRepo)
		deviceRepo := new(mockDeviceRepo)

		deviceRepo.On("FindBySessionAndExternalID", mock.Anything, "sess-1", "phone-2").Return(&model.Device{
			ID:     "dev-2",
			UserID: "user-2",
		}, nil)

		svc := NewRecordingService(recordingRepo, deviceRepo, newCapturePublisher())
		_, err := svc.Attach(context.Background(), "user-9", "sess-1", AttachRecordingInput{
			ExternalDeviceID: "phone-2",
			ObjectKey:        "recordings/x.webm",
		})

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	t.Run("requires object key", func(t *testing.T) {
		svc := NewRecordingService(new(mockRecordingRepo), new(mockDeviceRepo), newCapturePublisher())
		_, err := svc.Attach(context.Background(), "user-2", "sess-1", AttachRecordingInput{
			ExternalDeviceID: "phone-2",
		})

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("unknown device is not found", func(t *testing.T) {
		deviceRepo := new(mockDeviceRepo)
		deviceRepo.On("FindBySessionAndExternalID", mock.Anything, "sess-1", "ghost").Return(nil, nil)

		svc := NewRecordingService(new(mockRecordingRepo), deviceRepo, newCapturePublisher())
		_, err := svc.Attach(context.Background(), "user-2", "sess-1", AttachRecordingInput{
			ExternalDeviceID: "ghost",
			ObjectKey:        "recordings/x.webm",
		})

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestRecordingService_List(t *testing.T) {
	t.Run("lists session recordings", func(t *testing.T) {
		recordingRepo := new(mockRecordingRepo)
		recordingRepo.On("ListBySession", mock.Anything, "sess-1").Return([]model.SessionRecording{
			{ID: "rec-1"}, {ID: "rec-2"},
		}, nil)

		svc := NewRecordingService(recordingRepo, new(mockDeviceRepo), newCapturePublisher())
		recs, err := svc.List(context.Background(), "sess-1")

		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})
}
