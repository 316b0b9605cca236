package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/dbbackup/internal/config"
)

// GDriveStorage keeps published dumps in one Drive folder.
type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

// NewGDrive authenticates with a service account credentials file. An explicit
// endpoint talks to an unauthenticated emulator instead.
func NewGDrive(cfg *config.UploadTarget) (*GDriveStorage, error) {
	if cfg.FolderID == "" {
		return nil, fmt.Errorf("gdrive folder_id is required")
	}

	opts := []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
	if cfg.Endpoint != "" {
		opts = []option.ClientOption{option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication()}
	}

	service, err := drive.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	meta := &drive.File{
		Name:    remoteName,
		Parents: []string{g.folderID},
	}
	if _, err := g.service.Files.Create(meta).Media(file).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}
	return nil
}

func (g *GDriveStorage) List(ctx context.Context) ([]string, error) {
	files, err := g.query(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return names(files), nil
}

func (g *GDriveStorage) Exists(ctx context.Context, remoteName string) (bool, error) {
	files, err := g.find(ctx, remoteName)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// Delete removes every copy named remoteName, since Drive allows duplicates.
func (g *GDriveStorage) Delete(ctx context.Context, remoteName string) error {
	files, err := g.find(ctx, remoteName)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("file not found: %s", remoteName)
	}

	for _, f := range files {
		if err := g.service.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", remoteName, err)
		}
	}
	return nil
}

func (g *GDriveStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	files, err := g.query(ctx, fmt.Sprintf("createdTime < '%s'", cutoffTime.UTC().Format(time.RFC3339)))
	if err != nil {
		return nil, fmt.Errorf("failed to list old files: %w", err)
	}
	return names(files), nil
}

func (g *GDriveStorage) find(ctx context.Context, remoteName string) ([]*drive.File, error) {
	files, err := g.query(ctx, fmt.Sprintf("name='%s'", escapeQuery(remoteName)))
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	return files, nil
}

// query lists the folder's live files matching extra, following every page.
func (g *GDriveStorage) query(ctx context.Context, extra string) ([]*drive.File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(g.folderID))
	if extra != "" {
		q += " and " + extra
	}

	var files []*drive.File
	err := g.service.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, createdTime)").
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	return files, err
}

func names(files []*drive.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

// escapeQuery quotes a value for a Drive query string literal.
func escapeQuery(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
