package model

import (
	"encoding/json"
	"time"
)

type Session struct {
	ID             string           `db:"id" json:"id"`
	SessionCode    string           `db:"session_code" json:"sessionCode"`
	OwnerID        string           `db:"owner_id" json:"ownerId"`
	Status         SessionStatus    `db:"status" json:"status"`
	MasterDeviceID *string          `db:"master_device_id" json:"masterDeviceId,omitempty"`
	ConnectionType ConnectionType   `db:"connection_type" json:"connectionType"`
	Metadata       *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	StartedAt      *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	EndedAt        *time.Time       `db:"ended_at" json:"endedAt,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	ID             string
	SessionCode    string
	OwnerID        string
	ConnectionType ConnectionType
	Metadata       *json.RawMessage
}
