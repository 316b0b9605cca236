package compressor

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// GzipCompressor compresses finished dumps before they are published to remote targets.
type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.BestCompression}
}

func NewGzipLevel(level int) (*GzipCompressor, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip level %d", level)
	}
	return &GzipCompressor{level: level}, nil
}

func (g *GzipCompressor) Extension() string {
	return ".gz"
}

func (g *GzipCompressor) Compress(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	gzipWriter, err := gzip.NewWriterLevel(destFile, g.level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if info, err := sourceFile.Stat(); err == nil {
		gzipWriter.Name = info.Name()
		gzipWriter.ModTime = info.ModTime()
	}

	if _, err := io.Copy(gzipWriter, sourceFile); err != nil {
		gzipWriter.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}
	// The gzip footer is only written on Close.
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	return destFile.Close()
}
