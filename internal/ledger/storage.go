package ledger

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keeps the original uploaded invoice documents. Records and failures
// reference a document by the name returned from Save; several records of one
// file share a single document.
type Storage interface {
	// Save stores a document under name and returns the reference to record
	Save(name string, data []byte) (string, error)

	// Get retrieves a document by its stored reference
	Get(name string) ([]byte, error)

	// Delete removes a document nothing references anymore
	Delete(name string) error
}

// LocalStorage keeps documents as flat files in one directory. Document names
// originate from uploads, so anything that would escape the directory is
// rejected.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the document directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating document directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// resolve maps a document name to its path under the base directory.
func (l *LocalStorage) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid document name: %q", name)
	}
	return filepath.Join(l.basePath, name), nil
}

// Save stores an uploaded invoice document.
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return name, nil
}

// Get retrieves a stored invoice document.
func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

// Delete removes a stored invoice document.
func (l *LocalStorage) Delete(name string) error {
	path, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}
