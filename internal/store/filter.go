package store

import (
	"context"
	"database/sql"
	"strings"
)

// Filter is the common shape accepted by the query primitives in
// spec.md §4.3. Zero-value fields are unfiltered.
type Filter struct {
	Since     string // accepted time-string form, already parsed by caller
	Until     string
	ProjectID string
	SessionID string
	EventTypes []string
	ToolNames  []string
	Role       string // "user" or "assistant"
	Limit      int
	Offset     int
}

// wildcardClause turns field/value into a SQL fragment and its args. If
// value contains '*' or '%' it is treated as a LIKE pattern ('*' mapped to
// '%'); an empty value produces no clause at all.
func wildcardClause(field, value string) (string, []any) {
	if value == "" {
		return "", nil
	}
	if strings.ContainsAny(value, "*%") {
		pattern := strings.ReplaceAll(value, "*", "%")
		return field + " LIKE ?", []any{pattern}
	}
	return field + " = ?", []any{value}
}

// resolveProjectID implements spec.md §4.3's resolver chain for a
// non-wildcard project filter value: exact project_id, exact display_name,
// exact root_path, prefix on project_id, substring on display_name, then
// longest root_path-prefix match. Returns "" if nothing resolves, in which
// case the caller's query returns no rows rather than erroring.
func resolveProjectID(ctx context.Context, db *sql.DB, value string) (string, error) {
	if value == "" || strings.ContainsAny(value, "*%") {
		return value, nil
	}

	var id string
	err := db.QueryRowContext(ctx, `SELECT project_id FROM projects WHERE project_id = ?`, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	err = db.QueryRowContext(ctx, `SELECT project_id FROM projects WHERE display_name = ?`, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	err = db.QueryRowContext(ctx, `SELECT project_id FROM projects WHERE root_path = ?`, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	err = db.QueryRowContext(ctx,
		`SELECT project_id FROM projects WHERE project_id LIKE ? || '%' ORDER BY length(project_id) LIMIT 1`, value,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	err = db.QueryRowContext(ctx,
		`SELECT project_id FROM projects WHERE display_name LIKE '%' || ? || '%' LIMIT 1`, value,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	// Longest root_path-prefix match: value is itself a path; find the
	// registered project whose root_path is a prefix of it, preferring the
	// longest (most specific) match.
	err = db.QueryRowContext(ctx,
		`SELECT project_id FROM projects WHERE ? LIKE root_path || '%' ORDER BY length(root_path) DESC LIMIT 1`, value,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	return "", nil
}

// timeClauses builds the since/until comparison fragments against column,
// comparing as datetimes (not lexicographically) via SQLite's datetime().
func timeClauses(column string, f Filter) (string, []any) {
	var parts []string
	var args []any
	if f.Since != "" {
		parts = append(parts, "datetime("+column+") >= datetime(?)")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		parts = append(parts, "datetime("+column+") <= datetime(?)")
		args = append(args, f.Until)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, " AND "), args
}

func inClause(field string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return field + " IN (" + strings.Join(placeholders, ",") + ")", args
}

func likeOrInClause(field string, values []string) (string, []any) {
	hasWildcard := false
	for _, v := range values {
		if strings.ContainsAny(v, "*%") {
			hasWildcard = true
			break
		}
	}
	if !hasWildcard {
		return inClause(field, values)
	}
	var parts []string
	var args []any
	for _, v := range values {
		pattern := strings.ReplaceAll(v, "*", "%")
		parts = append(parts, field+" LIKE ?")
		args = append(args, pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// buildWhere assembles a WHERE clause (without the leading WHERE keyword)
// from f against the events table, resolving project_id through the
// resolver chain first. Returns "" with no args if nothing is filtered.
func buildWhere(ctx context.Context, db *sql.DB, f Filter) (string, []any, error) {
	var clauses []string
	var args []any

	if clause, a := timeClauses("event_ts", f); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}

	if f.ProjectID != "" {
		resolved, err := resolveProjectID(ctx, db, f.ProjectID)
		if err != nil {
			return "", nil, err
		}
		if clause, a := wildcardClause("project_id", resolved); clause != "" {
			clauses = append(clauses, clause)
			args = append(args, a...)
		} else if resolved == "" && !strings.ContainsAny(f.ProjectID, "*%") {
			// Nothing resolved: force an empty result set.
			clauses = append(clauses, "1 = 0")
		}
	}

	if clause, a := wildcardClause("session_id", f.SessionID); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}

	if clause, a := inClause("event_type", f.EventTypes); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}

	if clause, a := likeOrInClause("tool_name", f.ToolNames); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}

	switch f.Role {
	case "user":
		clauses = append(clauses, "event_type = ?")
		args = append(args, "user_message")
	case "assistant":
		clauses = append(clauses, "event_type = ?")
		args = append(args, "assistant_message")
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}
