// Package archive implements the analytics archive sink: an append-only
// store of raw transaction payloads partitioned by event time, for replay
// and batch analytics. It is best-effort relative to the primary stores.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

// FSSink writes one file per transaction under
// year=YYYY/month=MM/day=DD/hour=HH/<transaction_id>.json.
type FSSink struct {
	root string
}

func NewFSSink(root string) (*FSSink, error) {
	if root == "" {
		return nil, fmt.Errorf("archive sink requires a root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &FSSink{root: root}, nil
}

func (s *FSSink) Append(ctx context.Context, rec domain.ArchiveRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := archiveBody(rec)
	if err != nil {
		return err
	}

	t := rec.EventTime.UTC()
	dir := filepath.Join(s.root, fmt.Sprintf("year=%04d", t.Year()),
		fmt.Sprintf("month=%02d", t.Month()),
		fmt.Sprintf("day=%02d", t.Day()),
		fmt.Sprintf("hour=%02d", t.Hour()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive partition: %w", err)
	}

	path := filepath.Join(dir, rec.TransactionID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish archive file: %w", err)
	}
	return nil
}

// archiveBody is the verbatim input record with processed_at added.
func archiveBody(rec domain.ArchiveRecord) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec.Payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload for archive: %w", err)
	}
	processedAt, err := json.Marshal(rec.ProcessedAt.UTC())
	if err != nil {
		return nil, err
	}
	fields["processed_at"] = processedAt
	return json.Marshal(fields)
}

var _ ports.ArchiveSink = (*FSSink)(nil)
