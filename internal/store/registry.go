package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/boshu2/recall/internal/types"
)

// UpsertDevice inserts d if absent, otherwise refreshes last_seen_at only;
// nickname and created_at are immutable once a device is first persisted
// (spec.md §3 "Created once; immutable thereafter").
func (s *Store) UpsertDevice(ctx context.Context, d types.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, nickname, created_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET last_seen_at = excluded.last_seen_at
	`, d.DeviceID, d.Nickname, formatTime(d.CreatedAt), formatTime(d.LastSeenAt))
	return err
}

// GetDevice returns the persisted device, or (types.Device{}, sql.ErrNoRows)
// if none has been created yet.
func (s *Store) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	var d types.Device
	var createdAt, lastSeenAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, nickname, created_at, last_seen_at FROM devices WHERE device_id = ?
	`, deviceID).Scan(&d.DeviceID, &d.Nickname, &createdAt, &lastSeenAt)
	if err != nil {
		return types.Device{}, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeenAt)
	return d, nil
}

// UpsertProject inserts p if absent; existing rows are left untouched
// except DisplayName and GitRemote, which may legitimately change if a
// remote is added to a previously remote-less checkout.
func (s *Store) UpsertProject(ctx context.Context, p types.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (project_id, display_name, git_remote, root_path, share_policy, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			display_name = excluded.display_name,
			git_remote = excluded.git_remote
	`, p.ProjectID, p.DisplayName, nullable(p.GitRemote), p.RootPath, p.SharePolicy, formatTime(p.CreatedAt))
	return err
}

// GetProject returns the persisted project for id.
func (s *Store) GetProject(ctx context.Context, projectID string) (types.Project, error) {
	var p types.Project
	var gitRemote sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, display_name, git_remote, root_path, share_policy, created_at
		FROM projects WHERE project_id = ?
	`, projectID).Scan(&p.ProjectID, &p.DisplayName, &gitRemote, &p.RootPath, &p.SharePolicy, &createdAt)
	if err != nil {
		return types.Project{}, err
	}
	p.GitRemote = gitRemote.String
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return p, nil
}

// UpsertSource inserts src if (device_id, locator) is new, otherwise
// refreshes status/error_message/last_seen_at — the fields that change on
// every ingest tick per spec.md §3 "Lifecycles".
func (s *Store) UpsertSource(ctx context.Context, src types.Source) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (
			source_id, kind, locator, device_id, project_id, session_id, status,
			error_message, last_seen_at, redact_secrets, retain_on_delete,
			encrypt_originals, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, locator) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			last_seen_at = excluded.last_seen_at
	`,
		src.SourceID, string(src.Kind), src.Locator, src.DeviceID,
		nullable(src.ProjectID), nullable(src.SessionID),
		string(src.Status), nullable(src.ErrorMessage), formatTime(src.LastSeenAt),
		boolToInt(src.RedactSecrets), boolToInt(src.RetainOnDelete),
		boolToInt(src.EncryptOriginals), formatTime(src.CreatedAt),
	)
	return err
}

// UpdateSourceStatus sets a source's status and error message, as the
// orchestrator does after every ingest_source call (spec.md §4.5).
func (s *Store) UpdateSourceStatus(ctx context.Context, sourceID string, status types.SourceStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET status = ?, error_message = ?, last_seen_at = ? WHERE source_id = ?
	`, string(status), nullable(errMsg), formatTime(time.Now().UTC()), sourceID)
	return err
}

// GetSource returns types.ErrSourceNotFound-compatible sql.ErrNoRows when
// sourceID does not exist; callers wrap with types.ErrSourceNotFound.
func (s *Store) GetSource(ctx context.Context, sourceID string) (types.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, kind, locator, device_id, project_id, session_id, status,
		       error_message, last_seen_at, redact_secrets, retain_on_delete,
		       encrypt_originals, created_at
		FROM sources WHERE source_id = ?
	`, sourceID)
	return scanSource(row)
}

// ListSources returns every registered source, optionally narrowed to a
// single status (pass "" for all).
func (s *Store) ListSources(ctx context.Context, status types.SourceStatus) ([]types.Source, error) {
	query := `
		SELECT source_id, kind, locator, device_id, project_id, session_id, status,
		       error_message, last_seen_at, redact_secrets, retain_on_delete,
		       encrypt_originals, created_at
		FROM sources
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteSource removes a source and its cursor. When purge is true its
// events are removed as well; otherwise they are kept for historical
// queries per spec.md §3 "on source delete with purge=true its events are
// removed, otherwise kept."
func (s *Store) DeleteSource(ctx context.Context, sourceID string, purge bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if purge {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE source_id = ?`, sourceID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ciphertexts WHERE source_id = ?`, sourceID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cursors WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (types.Source, error) {
	var src types.Source
	var kind, status string
	var projectID, sessionID, errMsg sql.NullString
	var lastSeenAt, createdAt string
	var redact, retain, encrypt int
	err := row.Scan(
		&src.SourceID, &kind, &src.Locator, &src.DeviceID, &projectID, &sessionID,
		&status, &errMsg, &lastSeenAt, &redact, &retain, &encrypt, &createdAt,
	)
	if err != nil {
		return types.Source{}, err
	}
	src.Kind = types.SourceKind(kind)
	src.Status = types.SourceStatus(status)
	src.ProjectID = projectID.String
	src.SessionID = sessionID.String
	src.ErrorMessage = errMsg.String
	src.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeenAt)
	src.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	src.RedactSecrets = redact != 0
	src.RetainOnDelete = retain != 0
	src.EncryptOriginals = encrypt != 0
	return src, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
