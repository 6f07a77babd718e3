package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// ArchivePrefix is the key prefix under which prediction archives live.
const ArchivePrefix = "archive/predictions/"

// archiveRecord is the JSONL shape of one archived prediction.
type archiveRecord struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	Label     string    `json:"label"`
	Odds      float64   `json:"odds"`
	Status    string    `json:"status"`
	Result    string    `json:"result"`
	HomeScore *int      `json:"home_score"`
	AwayScore *int      `json:"away_score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PredictionArchiver implements domain.Archiver by writing predictions as
// JSONL to archive/predictions/YYYY-MM-DD.jsonl. Deleting the rows is the
// caller's job, after the upload succeeded.
type PredictionArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewPredictionArchiver creates a PredictionArchiver. reader is used to avoid
// overwriting an earlier archive for the same day and may be nil.
func NewPredictionArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *PredictionArchiver {
	return &PredictionArchiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		now:    time.Now,
	}
}

// ArchivePredictions uploads preds and returns the object path. Nothing is
// written for an empty slice.
func (a *PredictionArchiver) ArchivePredictions(ctx context.Context, preds []domain.Prediction, before time.Time) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}

	records := make([]archiveRecord, 0, len(preds))
	for _, p := range preds {
		records = append(records, archiveRecord{
			ID:        p.ID,
			MatchID:   p.MatchID,
			Label:     p.Label,
			Odds:      p.Odds,
			Status:    string(p.Status),
			Result:    string(p.Result),
			HomeScore: p.HomeScore,
			AwayScore: p.AwayScore,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive predictions marshal: %w", err)
	}

	path, err := a.freePath(ctx, before)
	if err != nil {
		return "", err
	}

	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive predictions upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.predictions", map[string]any{
			"path":   path,
			"count":  len(preds),
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive predictions audit log: %w", err)
		}
	}

	return path, nil
}

// freePath returns the day's archive path, or a time-suffixed variant when
// that object already exists.
func (a *PredictionArchiver) freePath(ctx context.Context, before time.Time) (string, error) {
	path := archivePath(before)
	if a.reader == nil {
		return path, nil
	}
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive predictions: %w", err)
	}
	if !exists {
		return path, nil
	}
	return fmt.Sprintf("%s%s-%s.jsonl", ArchivePrefix, before.UTC().Format("2006-01-02"), a.now().UTC().Format("150405")), nil
}

// archivePath is archive/predictions/YYYY-MM-DD.jsonl for the cutoff day.
func archivePath(before time.Time) string {
	return ArchivePrefix + before.UTC().Format("2006-01-02") + ".jsonl"
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*PredictionArchiver)(nil)
