package storage

import (
	"database/sql"
	"errors"
	"time"
)

const runColumns = `id, created_at, mode, status, days, events_created, error, duration_ms`

// SaveRun records one pipeline pass.
func (s *Store) SaveRun(r Run) error {
	_, err := s.db.Exec(`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixMicro(), r.Mode, r.Status, r.Days, r.EventsCreated, r.Error, r.DurationMS)
	return err
}

func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(limit, offset int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var created int64
	if err := row.Scan(&r.ID, &created, &r.Mode, &r.Status, &r.Days, &r.EventsCreated, &r.Error, &r.DurationMS); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.UnixMicro(created).UTC()
	return r, nil
}
