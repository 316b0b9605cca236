package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/semmidev/dbbackup/internal/domain"
)

// Notifier is implemented by targets that can deliver a plain text message.
type Notifier interface {
	SendNotification(message string) error
}

type UploadTarget struct {
	Name    string
	Storage domain.Storage
}

// Publisher copies finished dumps to the remote upload targets, optionally gzipped.
type Publisher struct {
	targets    []UploadTarget
	compressor domain.Compressor
	compress   bool
	logger     Logger
}

func NewPublisher(targets []UploadTarget, compressor domain.Compressor, compress bool, logger Logger) *Publisher {
	return &Publisher{
		targets:    targets,
		compressor: compressor,
		compress:   compress && compressor != nil,
		logger:     logger,
	}
}

// Publish uploads filePath to every target concurrently. Target failures are
// logged and joined into the returned error; none of them aborts the others.
func (p *Publisher) Publish(ctx context.Context, filePath, filename string) error {
	if p == nil || len(p.targets) == 0 {
		return nil
	}

	finalPath, finalName := filePath, filename
	if p.compress {
		var err error
		finalPath, finalName, err = p.compressDump(filePath, filename)
		if err != nil {
			return err
		}
		defer os.RemoveAll(filepath.Dir(finalPath))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, target := range p.targets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			p.logger.Infof("[%s] Uploading to %s...", finalName, t.Name)
			if err := t.Storage.Upload(ctx, finalPath, finalName); err != nil {
				p.logger.Errorf("[%s] Failed to upload to %s: %v", finalName, t.Name, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
				mu.Unlock()
				return
			}
			p.logger.Infof("[%s] Successfully uploaded to %s", finalName, t.Name)
		}(target)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Notify sends message to every target that supports notifications.
func (p *Publisher) Notify(message string) {
	if p == nil {
		return
	}
	for _, t := range p.targets {
		n, ok := t.Storage.(Notifier)
		if !ok {
			continue
		}
		if err := n.SendNotification(message); err != nil {
			p.logger.Warnf("Failed to notify %s: %v", t.Name, err)
		}
	}
}

// Unpublish removes a dump from every target that still has it.
func (p *Publisher) Unpublish(ctx context.Context, filename string) error {
	if p == nil {
		return nil
	}

	var errs []error
	for _, t := range p.targets {
		for _, name := range p.remoteNames(filename) {
			ok, err := t.Storage.Exists(ctx, name)
			if errors.Is(err, errors.ErrUnsupported) {
				break
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
				continue
			}
			if !ok {
				continue
			}
			if err := t.Storage.Delete(ctx, name); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) remoteNames(filename string) []string {
	if p.compressor == nil {
		return []string{filename}
	}
	return []string{filename, filename + p.compressor.Extension()}
}

func (p *Publisher) compressDump(filePath, filename string) (string, string, error) {
	compressedName := filename + p.compressor.Extension()
	tmpDir, err := os.MkdirTemp("", "dbbackup-publish-")
	if err != nil {
		return "", "", fmt.Errorf("compression: %w", err)
	}
	compressedPath := filepath.Join(tmpDir, compressedName)

	p.logger.Infof("[%s] Compressing backup...", filename)
	if err := p.compressor.Compress(filePath, compressedPath); err != nil {
		os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("compression: %w", err)
	}

	if original, err := os.Stat(filePath); err == nil && original.Size() > 0 {
		if compressed, err := os.Stat(compressedPath); err == nil {
			p.logger.Infof("[%s] Compression complete, size: %s (%.1f%% of original)",
				filename, domain.FormatSize(compressed.Size()),
				float64(compressed.Size())/float64(original.Size())*100)
		}
	}

	return compressedPath, compressedName, nil
}
