package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteArchive stores records in a local SQLite database.
type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		personality_answers TEXT NOT NULL,
		mental_health_answers TEXT NOT NULL,
		final_report TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user_id, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) Save(ctx context.Context, rec Record) error {
	personality, err := json.Marshal(rec.PersonalityAnswers)
	if err != nil {
		return fmt.Errorf("encode personality answers: %w", err)
	}
	mental, err := json.Marshal(rec.MentalAnswers)
	if err != nil {
		return fmt.Errorf("encode mental answers: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, timestamp, personality_answers, mental_health_answers, final_report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.UserID, rec.Timestamp, string(personality), string(mental), rec.FinalReport, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Latest returns the most recent records for userID, newest first.
func (a *SQLiteArchive) Latest(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT user_id, timestamp, personality_answers, mental_health_answers, final_report
		 FROM reports WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                 Record
			personality, mental string
		)
		if err := rows.Scan(&rec.UserID, &rec.Timestamp, &personality, &mental, &rec.FinalReport); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if err := json.Unmarshal([]byte(personality), &rec.PersonalityAnswers); err != nil {
			return nil, fmt.Errorf("decode personality answers: %w", err)
		}
		if err := json.Unmarshal([]byte(mental), &rec.MentalAnswers); err != nil {
			return nil, fmt.Errorf("decode mental answers: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return out, nil
}

func (a *SQLiteArchive) Close() error { return a.db.Close() }
