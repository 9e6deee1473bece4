package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             string
	StepDeadline     time.Duration
	CancelGrace      time.Duration
	MaxSessions      int
	SessionIdleTTL   time.Duration
	TvmMaxLen        int
	StokeActionSpace int
	ArchiveBackend   string
	ArchiveLocalRoot string
	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOBucket      string
	MinIOUseSSL      bool
}

func FromEnv() Config {
	return Config{
		Port:             getenv("SUPERSONIC_PORT", "50055"),
		StepDeadline:     time.Duration(getenvInt("SUPERSONIC_STEP_DEADLINE_MILLIS", 10000)) * time.Millisecond,
		CancelGrace:      time.Duration(getenvInt("SUPERSONIC_CANCEL_GRACE_MILLIS", 100)) * time.Millisecond,
		MaxSessions:      getenvInt("SUPERSONIC_MAX_SESSIONS", 0),
		SessionIdleTTL:   time.Duration(getenvInt("SUPERSONIC_SESSION_IDLE_SECONDS", 0)) * time.Second,
		TvmMaxLen:        getenvInt("SUPERSONIC_TVM_MAX_LEN", 45),
		StokeActionSpace: getenvInt("SUPERSONIC_STOKE_ACTION_SPACE", 9),
		ArchiveBackend:   getenv("SUPERSONIC_ARCHIVE_BACKEND", "none"),
		ArchiveLocalRoot: getenv("SUPERSONIC_ARCHIVE_ROOT", "/tmp/supersonic-traces"),
		MinIOEndpoint:    getenv("SUPERSONIC_MINIO_ENDPOINT", ""),
		MinIOAccessKey:   getenv("SUPERSONIC_MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:   getenv("SUPERSONIC_MINIO_SECRET_KEY", ""),
		MinIOBucket:      getenv("SUPERSONIC_MINIO_BUCKET", "supersonic-traces"),
		MinIOUseSSL:      getenvBool("SUPERSONIC_MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
