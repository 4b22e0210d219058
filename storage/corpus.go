package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileCorpus is the corpus accessor over the "ok" image directory. Training
// reads copies of these files, never the originals.
type FileCorpus struct {
	okDir string
}

// NewFileCorpus creates a corpus accessor over okDir
func NewFileCorpus(okDir string) *FileCorpus {
	return &FileCorpus{okDir: okDir}
}

// Count returns the number of normal samples
func (c *FileCorpus) Count() (int, error) {
	samples, err := c.Samples()
	return len(samples), err
}

// Samples enumerates the normal sample image paths
func (c *FileCorpus) Samples() ([]string, error) {
	var paths []string
	err := filepath.Walk(c.okDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if isImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// CountAddedSince returns the number of normal samples added at or after the
// cutoff, by file modification time.
func (c *FileCorpus) CountAddedSince(cutoff time.Time) (int, error) {
	count := 0
	err := filepath.Walk(c.okDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !isImage(path) {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
