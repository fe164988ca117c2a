package tracing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

const eventColumns = "ID, Seq, Pos, PID, VAddr, Kind, What, OK, Error"

// EventFilter selects the events to read back. Zero fields select
// everything.
type EventFilter struct {
	PID    uint32
	Pos    string
	Failed bool
	Limit  int
	Offset int
}

func (f EventFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.PID != 0 {
		conds = append(conds, "PID = ?")
		args = append(args, f.PID)
	}

	if f.Pos != "" {
		conds = append(conds, "Pos = ?")
		args = append(args, f.Pos)
	}

	if f.Failed {
		conds = append(conds, "OK = 0")
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// An EventReader reads back the events a DBTracer recorded.
type EventReader struct {
	db *sql.DB
}

// OpenEventReader opens a recording written by a DBTracer.
func OpenEventReader(path string) (*EventReader, error) {
	_, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	return &EventReader{db: db}, nil
}

// Query returns the events that pass the filter in recording order, together
// with the number of matching events before Limit and Offset apply.
func (r *EventReader) Query(
	ctx context.Context,
	filter EventFilter,
) ([]EventEntry, int, error) {
	where, args := filter.where()

	var total int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+EventTableName+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", EventTableName, err)
	}

	query := "SELECT " + eventColumns + " FROM " + EventTableName + where +
		" ORDER BY Seq ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", EventTableName, err)
	}
	defer rows.Close()

	var events []EventEntry
	for rows.Next() {
		var e EventEntry

		err := rows.Scan(&e.ID, &e.Seq, &e.Pos, &e.PID, &e.VAddr,
			&e.Kind, &e.What, &e.OK, &e.Error)
		if err != nil {
			return nil, 0, err
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// Close closes the recording.
func (r *EventReader) Close() error {
	return r.db.Close()
}
