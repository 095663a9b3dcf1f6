package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boshu2/recall/internal/types"
)

// IngestReport summarizes one InsertBatch call for the orchestrator's
// per-source ingest report (spec.md §4.5).
type IngestReport struct {
	Inserted int
	Ignored  int
}

// InsertBatch inserts events and upserts cursor inside a single transaction,
// per spec.md §3 "Cursors are upserted atomically with the batch of events
// they commit." Duplicate event_id rows are silently ignored, making
// re-ingestion of unchanged bytes a no-op (the idempotence property of
// §4.4/§8).
func (s *Store) InsertBatch(ctx context.Context, events []types.Event, cursor *types.Cursor) (IngestReport, error) {
	var report IngestReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (
			event_id, source_id, source_seq, device_id, project_id, session_id,
			event_ts, ingest_ts, source_kind, event_type, text_redacted,
			tool_name, tool_args_json, file_paths_json, meta_json,
			redaction_manifest_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return report, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		filePaths, err := json.Marshal(e.FilePaths)
		if err != nil {
			return report, fmt.Errorf("marshal file_paths for %s: %w", e.EventID, err)
		}

		res, err := stmt.ExecContext(ctx,
			e.EventID, e.SourceID, e.SourceSeq, e.DeviceID,
			nullable(e.ProjectID), nullable(e.SessionID),
			formatTime(e.EventTS), formatTime(e.IngestTS),
			string(e.SourceKind), string(e.EventType),
			nullable(e.TextRedacted), nullable(e.ToolName),
			nullable(e.ToolArgsJSON), string(filePaths),
			nullable(e.MetaJSON), nullable(e.RedactionJSON),
		)
		if err != nil {
			return report, fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return report, err
		}
		if n == 0 {
			report.Ignored++
		} else {
			report.Inserted++
		}
	}

	if cursor != nil {
		if err := upsertCursorTx(ctx, tx, cursor); err != nil {
			return report, fmt.Errorf("upsert cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return report, err
	}
	return report, nil
}

func upsertCursorTx(ctx context.Context, tx *sql.Tx, c *types.Cursor) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cursors (
			source_id, file_inode, file_size, file_mtime, byte_offset,
			diff_mtime, last_event_id, last_rowid, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			file_inode = excluded.file_inode,
			file_size = excluded.file_size,
			file_mtime = excluded.file_mtime,
			byte_offset = excluded.byte_offset,
			diff_mtime = excluded.diff_mtime,
			last_event_id = excluded.last_event_id,
			last_rowid = excluded.last_rowid,
			updated_at = excluded.updated_at
	`,
		c.SourceID, nullableUint(c.FileInode), nullableInt64(c.FileSize),
		formatTimeOrNil(c.FileMtime), nullableInt64(c.ByteOffset),
		formatTimeOrNil(c.DiffMtime), nullable(c.LastEventID),
		nullableInt64(c.LastRowID), formatTime(time.Now().UTC()),
	)
	return err
}

// GetCursor returns the persisted cursor for sourceID, or nil if none
// exists yet (a brand-new source).
func (s *Store) GetCursor(ctx context.Context, sourceID string) (*types.Cursor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, file_inode, file_size, file_mtime, byte_offset,
		       diff_mtime, last_event_id, last_rowid, updated_at
		FROM cursors WHERE source_id = ?
	`, sourceID)

	var c types.Cursor
	var inode, size, offset, rowid sql.NullInt64
	var fileMtime, diffMtime, lastEventID, updatedAt sql.NullString
	err := row.Scan(&c.SourceID, &inode, &size, &fileMtime, &offset, &diffMtime, &lastEventID, &rowid, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.FileInode = uint64(inode.Int64)
	c.FileSize = size.Int64
	c.ByteOffset = offset.Int64
	c.LastRowID = rowid.Int64
	c.LastEventID = lastEventID.String
	if fileMtime.Valid {
		c.FileMtime, _ = time.Parse(time.RFC3339Nano, fileMtime.String)
	}
	if diffMtime.Valid {
		c.DiffMtime, _ = time.Parse(time.RFC3339Nano, diffMtime.String)
	}
	if updatedAt.Valid {
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt.String)
	}
	return &c, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullableUint(n uint64) any {
	if n == 0 {
		return nil
	}
	return n
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func formatTimeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
