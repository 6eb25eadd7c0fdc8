// Package storage is the file-system abstraction behind the import inbox.
package storage

// FileMeta describes an importable file.
type FileMeta struct {
	// Path is relative to the provider root, using the OS separator.
	Path string
	// Checksum is the digest of the file bytes, used to skip duplicates.
	Checksum string
}

// Provider is the interface for inbox file operations. Paths are relative
// to the provider root; anything resolving outside it is rejected.
type Provider interface {
	// List returns metadata for every importable file under dir. Hidden
	// directories are skipped.
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Importable reports whether path has an accepted extension.
	Importable(path string) bool
}
