package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qc-inspector/core/models"

	"github.com/google/uuid"
)

// RecordStore is the metadata persistence the image store writes through
type RecordStore interface {
	Create(rec *models.ImageRecord) error
	UpdateLabel(filename, label, newPath string) error
	DeleteByFilename(filename string) error
}

// ImageStore saves captured images under the data root, bucketed by label
// and capture date, and keeps the metadata store in sync.
type ImageStore struct {
	dataDir string
	records RecordStore
	now     func() time.Time
}

// NewImageStore creates an image store rooted at dataDir
func NewImageStore(dataDir string, records RecordStore) *ImageStore {
	return &ImageStore{dataDir: dataDir, records: records, now: time.Now}
}

// DataDir returns the data root
func (s *ImageStore) DataDir() string { return s.dataDir }

// OKDir returns the directory holding "ok" labeled images
func (s *ImageStore) OKDir() string { return filepath.Join(s.dataDir, models.LabelOK) }

// SaveFromDataURL decodes a base64 data URL and stores it under the label's
// date directory. Returns the saved path and filename.
func (s *ImageStore) SaveFromDataURL(dataURL, label, cableID string) (string, string, error) {
	_, encoded, found := strings.Cut(dataURL, ",")
	if !found {
		return "", "", fmt.Errorf("malformed image data URL")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode image data: %w", err)
	}

	now := s.now()
	dir, err := s.ensureDateDir(label, now)
	if err != nil {
		return "", "", err
	}

	filename := captureFilename(now, cableID)
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err == nil {
		// Same-second capture for the same cable; de-collide.
		filename = strings.TrimSuffix(filename, ".jpg") + "_" + uuid.NewString()[:8] + ".jpg"
		path = filepath.Join(dir, filename)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to save image: %w", err)
	}

	rec := &models.ImageRecord{
		Timestamp: now,
		Filename:  filename,
		Filepath:  path,
		Label:     label,
		CableID:   cableID,
		FileSize:  int64(len(data)),
	}
	if err := s.records.Create(rec); err != nil {
		return "", "", fmt.Errorf("failed to record image metadata: %w", err)
	}

	return path, filename, nil
}

// Relabel moves an image file to the new label's date directory and updates
// its record. Returns the new path.
func (s *ImageStore) Relabel(path, newLabel string) (string, error) {
	dir, err := s.ensureDateDir(newLabel, s.now())
	if err != nil {
		return "", err
	}

	filename := filepath.Base(path)
	newPath := filepath.Join(dir, filename)

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, newPath); err != nil {
			return "", fmt.Errorf("failed to move image: %w", err)
		}
	}

	if err := s.records.UpdateLabel(filename, newLabel, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

// Delete removes an image file and its record
func (s *ImageStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.records.DeleteByFilename(filepath.Base(path))
}

// WithinDataRoot reports whether path resolves inside the data root
func (s *ImageStore) WithinDataRoot(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	root, err := filepath.Abs(s.dataDir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *ImageStore) ensureDateDir(label string, now time.Time) (string, error) {
	if !models.ValidLabel(label) {
		label = models.LabelUnlabeled
	}
	dir := filepath.Join(s.dataDir, label, now.Format("20060102"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create label directory: %w", err)
	}
	return dir, nil
}

func captureFilename(now time.Time, cableID string) string {
	name := now.Format("2006-01-02_15-04-05")
	if cableID != "" {
		name += "_" + cableID
	}
	return name + ".jpg"
}
