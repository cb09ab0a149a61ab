package events

import (
	"context"
	"encoding/json"

	"github.com/opentake/multicam-server-go/internal/model"
)

// Event types carried on a session's change feed. Every event carries the
// changed row's full snapshot; consumers re-derive their local view and
// must tolerate at-least-once delivery.
const (
	TypeMembershipChanged    = "membership_changed"
	TypeSessionStatusChanged = "session_status_changed"
	TypeRecordingAdded       = "recording_added"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Publisher fans a session-scoped event out to every subscribed device.
// Services depend on this interface so tests can capture published events.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, event Event) error
}

func MembershipChanged(device *model.Device) (Event, error) {
	data, err := json.Marshal(device)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: TypeMembershipChanged, Data: data}, nil
}

func SessionStatusChanged(session *model.Session) (Event, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: TypeSessionStatusChanged, Data: data}, nil
}

func RecordingAdded(rec *model.SessionRecording) (Event, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: TypeRecordingAdded, Data: data}, nil
}
