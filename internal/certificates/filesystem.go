package certificates

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"time"
)

// FileSystem abstracts the file operations performed by certificate components.
type FileSystem interface {
	EnsureDirectory(path string, permissions fs.FileMode) error
	FileExists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, permissions fs.FileMode) error
	Remove(path string) error
	ReadDirectory(path string) ([]fs.DirEntry, error)
}

// OperatingSystemFileSystem implements FileSystem using the local disk.
type OperatingSystemFileSystem struct {
	applyPermissions bool
}

// NewOperatingSystemFileSystem constructs an OperatingSystemFileSystem.
func NewOperatingSystemFileSystem() OperatingSystemFileSystem {
	return OperatingSystemFileSystem{applyPermissions: runtime.GOOS != "windows"}
}

// EnsureDirectory creates the directory and its parents when missing.
func (fileSystem OperatingSystemFileSystem) EnsureDirectory(path string, permissions fs.FileMode) error {
	return os.MkdirAll(path, permissions)
}

// FileExists reports whether anything exists at path.
func (fileSystem OperatingSystemFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadFile returns the content stored at path.
func (fileSystem OperatingSystemFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile stores content at path. On POSIX systems the permissions are enforced
// even when the file already existed with a wider mode.
func (fileSystem OperatingSystemFileSystem) WriteFile(path string, content []byte, permissions fs.FileMode) error {
	if err := os.WriteFile(path, content, permissions); err != nil {
		return err
	}
	if !fileSystem.applyPermissions {
		return nil
	}
	return os.Chmod(path, permissions)
}

// Remove deletes path, ignoring files that are already gone.
func (fileSystem OperatingSystemFileSystem) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NewSystemClock constructs a SystemClock.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now returns the current time.
func (clock SystemClock) Now() time.Time {
	return time.Now()
}

// ReadDirectory lists the entries of the directory at path.
func (fileSystem OperatingSystemFileSystem) ReadDirectory(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}
