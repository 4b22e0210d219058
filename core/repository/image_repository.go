package repository

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"qc-inspector/core/models"
)

// ImageRepository handles database operations for captured image records
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new image repository
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create inserts a new image record and fills in its assigned ID
func (r *ImageRepository) Create(rec *models.ImageRecord) error {
	query := `
		INSERT INTO image_records (timestamp, filename, filepath, label, cable_id, file_size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.db.QueryRow(query,
		rec.Timestamp,
		rec.Filename,
		rec.Filepath,
		rec.Label,
		rec.CableID,
		rec.FileSize,
	).Scan(&rec.ID)
}

// UpdateLabel moves a record to a new label and file location
func (r *ImageRepository) UpdateLabel(filename, label, newPath string) error {
	query := `UPDATE image_records SET label = $1, filepath = $2 WHERE filename = $3`
	_, err := r.db.Exec(query, label, newPath, filename)
	return err
}

// DeleteByFilename removes the record for a filename
func (r *ImageRepository) DeleteByFilename(filename string) error {
	_, err := r.db.Exec(`DELETE FROM image_records WHERE filename = $1`, filename)
	return err
}

// Recent returns the n most recently captured records whose files still exist
func (r *ImageRepository) Recent(n int) ([]models.ImageRecord, error) {
	query := `
		SELECT id, timestamp, filename, filepath, label, cable_id, file_size_bytes, score
		FROM image_records
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := r.db.Query(query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExisting(rows)
}

// Filtered returns records matching the label and cable-id filters with
// limit/offset pagination. The total counts all matches, paged or not.
func (r *ImageRepository) Filtered(label, cableID string, limit, offset int) ([]models.ImageRecord, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if label != "" {
		args = append(args, label)
		where += fmt.Sprintf(" AND label = $%d", len(args))
	}
	if cableID != "" {
		args = append(args, "%"+cableID+"%")
		where += fmt.Sprintf(" AND cable_id ILIKE $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM image_records "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, timestamp, filename, filepath, label, cable_id, file_size_bytes, score
		FROM image_records %s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := scanExisting(rows)
	return records, total, err
}

// Statistics returns aggregate counts per label
func (r *ImageRepository) Statistics() (*models.LabelStats, error) {
	rows, err := r.db.Query(`SELECT label, COUNT(*) FROM image_records GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.LabelStats{}
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, err
		}
		switch label {
		case models.LabelOK:
			stats.OK = count
		case models.LabelNG:
			stats.NG = count
		case models.LabelUnlabeled:
			stats.Unlabeled = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

// DailyStatistics returns per-day counts for the last `days` days,
// newest first.
func (r *ImageRepository) DailyStatistics(days int) ([]models.DailyStats, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	query := `
		SELECT to_char(timestamp, 'YYYY-MM-DD') AS day,
			COUNT(*) FILTER (WHERE label = 'ok'),
			COUNT(*) FILTER (WHERE label = 'ng'),
			COUNT(*) FILTER (WHERE label = 'unlabeled'),
			COUNT(*)
		FROM image_records
		WHERE timestamp >= $1
		GROUP BY day
		ORDER BY day DESC
	`
	rows, err := r.db.Query(query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var daily []models.DailyStats
	for rows.Next() {
		var d models.DailyStats
		if err := rows.Scan(&d.Date, &d.OK, &d.NG, &d.Unlabeled, &d.Total); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

// ExportCSV writes every record as CSV, ascending by timestamp
func (r *ImageRepository) ExportCSV(w io.Writer) error {
	rows, err := r.db.Query(`
		SELECT timestamp, filename, filepath, label, cable_id, file_size_bytes
		FROM image_records
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "filename", "filepath", "label", "cable_id", "file_size_bytes"}); err != nil {
		return err
	}
	for rows.Next() {
		var ts time.Time
		var filename, filepath, label, cableID string
		var size int64
		if err := rows.Scan(&ts, &filename, &filepath, &label, &cableID, &size); err != nil {
			return err
		}
		if err := cw.Write([]string{
			ts.Format(time.RFC3339),
			filename,
			filepath,
			label,
			cableID,
			strconv.FormatInt(size, 10),
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Count returns the total number of records
func (r *ImageRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM image_records`).Scan(&n)
	return n, err
}

// MigrateCSV imports a legacy metadata.csv once, when the table is empty.
// It returns the number of imported rows.
func (r *ImageRepository) MigrateCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	existing, err := r.Count()
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return 0, err
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}

	field := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	imported := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, err
		}

		ts, err := time.Parse(time.RFC3339, field(row, "timestamp"))
		if err != nil {
			ts = time.Now()
		}
		size, _ := strconv.ParseInt(field(row, "file_size_bytes"), 10, 64)

		rec := models.ImageRecord{
			Timestamp: ts,
			Filename:  field(row, "filename"),
			Filepath:  field(row, "filepath"),
			Label:     field(row, "label"),
			CableID:   field(row, "cable_id"),
			FileSize:  size,
		}
		if rec.Label == "" {
			rec.Label = models.LabelUnlabeled
		}
		if err := r.Create(&rec); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func scanExisting(rows *sql.Rows) ([]models.ImageRecord, error) {
	var records []models.ImageRecord
	for rows.Next() {
		var rec models.ImageRecord
		var score sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Filename, &rec.Filepath, &rec.Label, &rec.CableID, &rec.FileSize, &score); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			rec.Score = &v
		}
		if _, err := os.Stat(rec.Filepath); err != nil {
			continue
		}
		rec.Exists = true
		records = append(records, rec)
	}
	return records, rows.Err()
}
