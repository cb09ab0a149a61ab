package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const ReaperJobInterval = 30 * time.Second

// Lower bound for the device staleness window. Heartbeats arrive roughly
// every 10-15s from healthy devices; anything tighter reaps flaky networks.
const MinDeviceStaleSeconds = 30

// Session join codes
const (
	SessionCodeLength      = 6
	SessionCodeMaxAttempts = 5
)
