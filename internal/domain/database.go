package domain

import (
	"context"
	"time"
)

// ConnectionDescriptor addresses one target database.
type ConnectionDescriptor struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string
}

type RestoreMode string

const (
	RestoreSafe RestoreMode = "safe"
	RestoreDrop RestoreMode = "drop"
)

func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "":
		return RestoreSafe, nil
	case RestoreSafe, RestoreDrop:
		return RestoreMode(s), nil
	}
	return "", Validationf("mode", "unknown restore mode %q (want safe or drop)", s)
}

type ProcessResult struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// Process is a running dump or restore tool.
type Process interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Wait blocks until exit. A non-zero exit returns a KindToolExecutionFailed error.
	Wait() (ProcessResult, error)
}

type Database interface {
	StartDump(ctx context.Context, outputPath string) (Process, error)
	Restore(ctx context.Context, inputPath string, mode RestoreMode) (ProcessResult, error)
	// Version is best effort and returns UnknownVersion on any failure.
	Version(ctx context.Context) string
	GetName() string
	GetType() string
}
