package domain

// Compressor shrinks a finished dump before it leaves the host.
type Compressor interface {
	Compress(sourcePath, destPath string) error
	Extension() string
}
