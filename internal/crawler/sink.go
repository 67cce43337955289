package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SinkRecord is one persisted crawl result. It extends the downstream
// ResultRecord shape with integrity and provenance fields.
type SinkRecord struct {
	ResultRecord
	ContentHash string `json:"content_hash,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	Attempts    int    `json:"attempts"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// RunOutput is the JSON document written per crawl batch.
type RunOutput struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Results   []SinkRecord `json:"results"`
}

// FileSystemSink persists batch results as a JSON array on disk.
type FileSystemSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSystemSink returns a sink rooted at dir.
func NewFileSystemSink(root string, logger *zap.Logger) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemSink{root: root, logger: logger}, nil
}

// WriteResults persists one batch and returns the output path. The record
// order matches the response order, which matches request submission order.
func (s *FileSystemSink) WriteResults(ctx context.Context, responses []CrawlResponse) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}

	runID := uuid.NewString()
	out := RunOutput{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Results:   make([]SinkRecord, 0, len(responses)),
	}
	for _, resp := range responses {
		rec := SinkRecord{
			ResultRecord: resp.Record(),
			StatusCode:   resp.StatusCode,
			Attempts:     resp.Attempts,
			ElapsedMs:    resp.Elapsed.Milliseconds(),
		}
		if rec.Content != "" {
			rec.ContentHash = hashContent(rec.Content)
		}
		out.Results = append(out.Results, rec)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}

	target := filepath.Join(s.root, fmt.Sprintf("crawl_%s.json", runID))
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("writing results to %s: %w", target, err)
	}

	s.logger.Info("crawl results written",
		zap.String("run_id", runID),
		zap.String("path", target),
		zap.Int("results", len(out.Results)))
	return target, nil
}

// hashContent returns the hex SHA-256 digest of the extracted content.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
