package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArchive persists records in PostgreSQL.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresArchive{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assessment_reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			personality_answers JSONB NOT NULL,
			mental_health_answers JSONB NOT NULL,
			final_report TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assessment_reports_user_created ON assessment_reports (user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (a *PostgresArchive) Save(ctx context.Context, rec Record) error {
	personality, err := json.Marshal(rec.PersonalityAnswers)
	if err != nil {
		return fmt.Errorf("encode personality answers: %w", err)
	}
	mental, err := json.Marshal(rec.MentalAnswers)
	if err != nil {
		return fmt.Errorf("encode mental answers: %w", err)
	}

	createdAt, err := time.ParseInLocation(TimestampLayout, rec.Timestamp, time.Local)
	if err != nil {
		createdAt = time.Now()
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO assessment_reports (id, user_id, personality_answers, mental_health_answers, final_report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(),
		rec.UserID,
		personality,
		mental,
		rec.FinalReport,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}
