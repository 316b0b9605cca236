package domain

import (
	"context"
	"time"
)

// Storage is a destination for finished dumps (local directory or a remote target).
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	Exists(ctx context.Context, remoteName string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}

// DumpFile is a dump found on disk, independent of any record.
type DumpFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}
