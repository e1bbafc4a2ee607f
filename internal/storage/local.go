package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStore writes exported documents to a dated directory tree under
// outputDir: outputs/2025/01/23/<filename>.
type LocalStore struct {
	outputDir string
}

// NewLocalStore creates a local document store rooted at outputDir.
func NewLocalStore(outputDir string) *LocalStore {
	return &LocalStore{outputDir: outputDir}
}

// Save writes the document and returns its full path. The filename is
// expected to already be sanitized by the extraction engine.
func (ls *LocalStore) Save(filename string, data []byte) (string, error) {
	now := time.Now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %v", err)
	}

	path := filepath.Join(dateDir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save document: %v", err)
	}

	return path, nil
}
