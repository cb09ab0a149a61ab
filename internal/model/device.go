package model

import (
	"encoding/json"
	"time"
)

type Device struct {
	ID               string           `db:"id" json:"id"`
	SessionID        string           `db:"session_id" json:"sessionId"`
	ExternalDeviceID string           `db:"external_device_id" json:"deviceId"`
	UserID           string           `db:"user_id" json:"userId"`
	DisplayName      string           `db:"display_name" json:"deviceName"`
	Role             DeviceRole       `db:"role" json:"role"`
	AngleLabel       *string          `db:"angle_label" json:"angleName,omitempty"`
	Status           DeviceStatus     `db:"status" json:"status"`
	Capabilities     *json.RawMessage `db:"capabilities" json:"capabilities,omitempty"`
	LastSeen         *time.Time       `db:"last_seen" json:"lastSeen,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

type CreateDeviceParams struct {
	ID               string
	SessionID        string
	ExternalDeviceID string
	UserID           string
	DisplayName      string
	Role             DeviceRole
	AngleLabel       *string
	Capabilities     *json.RawMessage
}
