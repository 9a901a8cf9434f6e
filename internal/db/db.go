package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite database.
type DB struct {
	conn *sql.DB
}

// Delivery is one handled Slack callback as stored in the audit log.
type Delivery struct {
	ID          int64
	RequestID   string
	ReceivedAt  string // RFC3339, UTC
	PayloadType string
	EventType   string
	Channel     string
	Outcome     string
	Status      int
	Detail      string
	RetryNum    int
}

// Open creates a new DB connection and runs all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// --- Migrations ---

func migrate(conn *sql.DB) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// --- Delivery Methods ---

// InsertDelivery stores a delivery record and returns its ID.
func (d *DB) InsertDelivery(r *Delivery) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO deliveries (request_id, received_at, payload_type, event_type, channel, outcome, status, detail, retry_num)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.ReceivedAt, r.PayloadType, r.EventType, r.Channel, r.Outcome, r.Status, r.Detail, r.RetryNum,
	)
	if err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	return res.LastInsertId()
}

// ListDeliveries returns deliveries newest first, with a limit, offset, and
// optional outcome filter.
func (d *DB) ListDeliveries(limit, offset int, outcome *string) ([]Delivery, error) {
	query := `SELECT id, request_id, received_at, payload_type, event_type, channel, outcome, status, detail, retry_num
		FROM deliveries WHERE 1=1`
	var args []any
	if outcome != nil {
		query += ` AND outcome = ?`
		args = append(args, *outcome)
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Delivery
	for rows.Next() {
		var r Delivery
		if err := rows.Scan(&r.ID, &r.RequestID, &r.ReceivedAt, &r.PayloadType, &r.EventType, &r.Channel, &r.Outcome, &r.Status, &r.Detail, &r.RetryNum); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountDeliveries returns the number of stored deliveries per outcome.
func (d *DB) CountDeliveries() (map[string]int, error) {
	rows, err := d.conn.Query(`SELECT outcome, COUNT(*) FROM deliveries GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// PruneDeliveries deletes deliveries received before cutoff (RFC3339) and
// returns how many were removed.
func (d *DB) PruneDeliveries(cutoff string) (int64, error) {
	res, err := d.conn.Exec(`DELETE FROM deliveries WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return res.RowsAffected()
}
