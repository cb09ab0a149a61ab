package model

type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "waiting"
	SessionStatusReady     SessionStatus = "ready"
	SessionStatusRecording SessionStatus = "recording"
	SessionStatusStopped   SessionStatus = "stopped"
	SessionStatusCompleted SessionStatus = "completed"
)

// Joinable reports whether a session in this status accepts new devices.
// Recording and both terminal states do not.
func (s SessionStatus) Joinable() bool {
	return s == SessionStatusWaiting || s == SessionStatusReady
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusReady, SessionStatusRecording,
		SessionStatusStopped, SessionStatusCompleted:
		return true
	}
	return false
}

type DeviceRole string

const (
	DeviceRoleMaster DeviceRole = "master"
	DeviceRoleCamera DeviceRole = "camera"
)

type DeviceStatus string

const (
	DeviceStatusConnected    DeviceStatus = "connected"
	DeviceStatusReady        DeviceStatus = "ready"
	DeviceStatusRecording    DeviceStatus = "recording"
	DeviceStatusDisconnected DeviceStatus = "disconnected"
)

// Reportable reports whether a device may set this status on itself.
// Disconnection goes through leave (or the reaper), not a status report.
func (s DeviceStatus) Reportable() bool {
	return s == DeviceStatusConnected || s == DeviceStatusReady || s == DeviceStatusRecording
}

type ConnectionType string

const (
	ConnectionTypeInternet ConnectionType = "internet"
	ConnectionTypeLocal    ConnectionType = "local"
)
