package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Save persists one cohort's records in a single transaction and returns
// the minted cohort id. Types and records within a type are written in
// sorted order so the on-disk sequence is deterministic.
func (s *Store) Save(ctx context.Context, name string, recordsByType map[string][]Record) (string, error) {
	if name == "" {
		return "", fmt.Errorf("save cohort: name is required")
	}

	id := uuid.Must(uuid.NewV7()).String()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save cohort: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cohorts (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, createdAt,
	); err != nil {
		return "", fmt.Errorf("save cohort %q: %w", name, err)
	}

	types := make([]string, 0, len(recordsByType))
	for t := range recordsByType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		recs := append([]Record(nil), recordsByType[t]...)
		sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
		for _, rec := range recs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records (cohort_id, entity_type, entity_id, body) VALUES (?, ?, ?, ?)`,
				id, t, rec.ID, string(rec.Body),
			); err != nil {
				return "", fmt.Errorf("save cohort %q record %s/%s: %w", name, t, rec.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save cohort %q: commit: %w", name, err)
	}
	return id, nil
}

// Load returns a cohort's records grouped by entity type. nameOrID matches
// a cohort id first, then the most recently created cohort with that name.
// Returns sql.ErrNoRows wrapped if nothing matches.
func (s *Store) Load(ctx context.Context, nameOrID string) (map[string][]Record, error) {
	id, err := s.resolveCohortID(ctx, nameOrID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, entity_id, body
		FROM records
		WHERE cohort_id = ?
		ORDER BY entity_type ASC, entity_id ASC COLLATE BINARY
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load cohort %q: %w", nameOrID, err)
	}
	defer rows.Close()

	out := make(map[string][]Record)
	for rows.Next() {
		var entityType, entityID, body string
		if err := rows.Scan(&entityType, &entityID, &body); err != nil {
			return nil, fmt.Errorf("load cohort %q: scan: %w", nameOrID, err)
		}
		out[entityType] = append(out[entityType], Record{ID: entityID, Body: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load cohort %q: %w", nameOrID, err)
	}
	return out, nil
}

// resolveCohortID maps a name or id to a cohort id.
func (s *Store) resolveCohortID(ctx context.Context, nameOrID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM cohorts
		WHERE id = ? OR name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, nameOrID, nameOrID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("cohort %q: %w", nameOrID, err)
	}
	if err != nil {
		return "", fmt.Errorf("resolve cohort %q: %w", nameOrID, err)
	}
	return id, nil
}

// List returns cohort metadata matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]CohortInfo, error) {
	where, args := filter.compile()
	query := `
		SELECT c.id, c.name, c.created_at, COUNT(r.entity_id)
		FROM cohorts c
		LEFT JOIN records r ON r.cohort_id = c.id
	` + where + `
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.id DESC
	`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	defer rows.Close()

	var out []CohortInfo
	for rows.Next() {
		var info CohortInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.CreatedAt, &info.Records); err != nil {
			return nil, fmt.Errorf("list cohorts: scan: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	return out, nil
}
