package models

import "time"

// Image labels
const (
	LabelOK        = "ok"
	LabelNG        = "ng"
	LabelUnlabeled = "unlabeled"
)

// ValidLabel reports whether s is one of the recognized image labels
func ValidLabel(s string) bool {
	return s == LabelOK || s == LabelNG || s == LabelUnlabeled
}

// ImageRecord is the metadata row for one captured inspection image
type ImageRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	Filepath  string    `json:"filepath"`
	Label     string    `json:"label"`
	CableID   string    `json:"cable_id"`
	FileSize  int64     `json:"file_size_bytes"`
	Score     *float64  `json:"score"`
	Exists    bool      `json:"exists"`
}

// LabelStats holds aggregate image counts per label
type LabelStats struct {
	OK        int `json:"ok"`
	NG        int `json:"ng"`
	Unlabeled int `json:"unlabeled"`
	Total     int `json:"total"`
}

// DailyStats holds per-day image counts
type DailyStats struct {
	Date      string `json:"date"`
	OK        int    `json:"ok"`
	NG        int    `json:"ng"`
	Unlabeled int    `json:"unlabeled"`
	Total     int    `json:"total"`
}
