package model

import "time"

// SessionRecording links a finished device upload to its session. The sync
// offset is a recorded placeholder; no clock alignment is performed.
type SessionRecording struct {
	ID             string    `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"sessionId"`
	DeviceID       string    `db:"device_id" json:"deviceId"`
	ObjectKey      string    `db:"object_key" json:"objectKey"`
	AngleLabel     *string   `db:"angle_label" json:"angleName,omitempty"`
	IsPrimaryAngle bool      `db:"is_primary_angle" json:"isPrimaryAngle"`
	SyncOffsetMs   *int64    `db:"sync_offset_ms" json:"syncOffsetMs,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type CreateSessionRecordingParams struct {
	ID             string
	SessionID      string
	DeviceID       string
	ObjectKey      string
	AngleLabel     *string
	IsPrimaryAngle bool
	SyncOffsetMs   *int64
}
