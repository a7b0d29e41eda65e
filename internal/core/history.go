package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"sampletrack/internal/blob"

	"github.com/google/uuid"
)

const historyContentType = "application/x-ndjson"

// ErrNoBlobStore is returned by ExportHistory when no blob store is configured.
var ErrNoBlobStore = errors.New("core: no blob store configured")

// ListHistory returns history entries matching q, oldest first.
func (s *Service) ListHistory(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	if q.Limit < 0 {
		q.Limit = 0
	}
	var out []HistoryEntry
	err := s.view(ctx, "list_history", func(r Reader) error {
		var err error
		out, err = r.ListHistory(q)
		return err
	})
	return out, err
}

// ExportHistory writes the entries matching q to the blob store as one JSON
// object per line, under history/<yyyy>/<mm>/<timestamp>-<id>.jsonl.
func (s *Service) ExportHistory(ctx context.Context, q HistoryQuery) (blob.Info, error) {
	if s.blobs == nil {
		return blob.Info{}, ErrNoBlobStore
	}
	entries, err := s.ListHistory(ctx, q)
	if err != nil {
		return blob.Info{}, err
	}
	ctx, span := s.tracer.Start(ctx, "export_history")
	start := s.clock.Now()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err = enc.Encode(e); err != nil {
			err = fmt.Errorf("encode history entry %s: %w", e.ID, err)
			break
		}
	}
	var info blob.Info
	if err == nil {
		now := start.UTC()
		key := fmt.Sprintf("history/%04d/%02d/%s-%s.jsonl", now.Year(), int(now.Month()), now.Format("20060102T150405Z"), uuid.NewString())
		info, err = s.blobs.Put(ctx, key, bytes.NewReader(buf.Bytes()), blob.PutOptions{
			ContentType: historyContentType,
			Metadata: map[string]string{
				"entries": strconv.Itoa(len(entries)),
				"actor":   ActorFromContext(ctx),
			},
		})
		if err == nil {
			s.logger.Info("history exported", "key", info.Key, "entries", len(entries), "bytes", info.Size)
		}
	}
	s.finish(ctx, "export_history", start, Result{}, err)
	span.End(err)
	return info, err
}
