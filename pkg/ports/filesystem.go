package ports

// FileSystem is the file access used for summaries and thumbnails. Encoders
// write their clips directly.
type FileSystem interface {
	// WriteFile replaces path with data, creating parent directories.
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
	// FileSize returns the size of a regular file in bytes.
	FileSize(path string) (int64, error)
}
