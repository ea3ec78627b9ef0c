// Package sqlite is the single-file engagement store used for offline and
// demo deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes writes anyway and this keeps
	// ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrations returns the schema statements. SQLite executes one at a time.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS engagements (
			engagement_id     TEXT PRIMARY KEY,
			listing_id        TEXT NOT NULL,
			buyer_need_id     TEXT NOT NULL,
			buyer_id          TEXT,
			supplier_id       TEXT NOT NULL,
			status            TEXT NOT NULL,
			tier              TEXT NOT NULL DEFAULT '',
			path              TEXT NOT NULL,
			match_score       REAL NOT NULL DEFAULT 0,
			match_rank        INTEGER NOT NULL DEFAULT 0,
			pricing           TEXT NOT NULL,
			phases            TEXT NOT NULL,
			hold_expires_at   TEXT,
			tour              TEXT NOT NULL,
			onboarding        TEXT NOT NULL,
			agreement_version INTEGER NOT NULL DEFAULT 0,
			outcome           TEXT NOT NULL,
			admin_notes       TEXT NOT NULL DEFAULT '',
			flagged           INTEGER NOT NULL DEFAULT 0,
			flag_reason       TEXT NOT NULL DEFAULT '',
			version           INTEGER NOT NULL,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engagements_hold ON engagements(hold_expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_engagements_status ON engagements(status)`,

		`CREATE TABLE IF NOT EXISTS engagement_events (
			event_id      TEXT NOT NULL UNIQUE,
			engagement_id TEXT NOT NULL REFERENCES engagements(engagement_id),
			sequence      INTEGER NOT NULL,
			transition    TEXT NOT NULL,
			actor_role    TEXT NOT NULL,
			actor_id      TEXT NOT NULL DEFAULT '',
			from_status   TEXT NOT NULL DEFAULT '',
			to_status     TEXT NOT NULL,
			payload       TEXT,
			created_at    TEXT NOT NULL,
			PRIMARY KEY (engagement_id, sequence)
		)`,

		`CREATE TABLE IF NOT EXISTS engagement_agreements (
			agreement_id       TEXT NOT NULL UNIQUE,
			engagement_id      TEXT NOT NULL REFERENCES engagements(engagement_id),
			version            INTEGER NOT NULL,
			status             TEXT NOT NULL,
			terms              TEXT NOT NULL,
			terms_digest       TEXT NOT NULL,
			pricing            TEXT NOT NULL,
			sent_at            TEXT NOT NULL,
			expires_at         TEXT NOT NULL,
			buyer_signed_at    TEXT,
			supplier_signed_at TEXT,
			cancelled_at       TEXT,
			updated_at         TEXT NOT NULL,
			PRIMARY KEY (engagement_id, version)
		)`,

		`CREATE TABLE IF NOT EXISTS engagement_notifications (
			notification_id TEXT PRIMARY KEY,
			engagement_id   TEXT NOT NULL REFERENCES engagements(engagement_id),
			sequence        INTEGER NOT NULL,
			dedupe_key      TEXT NOT NULL,
			recipient       TEXT NOT NULL,
			recipient_id    TEXT,
			channel         TEXT NOT NULL,
			priority        TEXT NOT NULL,
			topic           TEXT NOT NULL,
			payload         TEXT,
			status          TEXT NOT NULL,
			retry_count     INTEGER NOT NULL DEFAULT 0,
			max_retries     INTEGER NOT NULL DEFAULT 0,
			last_error      TEXT,
			created_at      TEXT NOT NULL,
			delivered_at    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engagement_notifications_engagement ON engagement_notifications(engagement_id, sequence)`,
	}
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
