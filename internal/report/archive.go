// Package report synthesizes the integrated narrative and archives completed
// assessments.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/anees/internal/session"
)

const TimestampLayout = "2006-01-02 15:04:05"

// Record is the archived outcome of a completed assessment.
type Record struct {
	Timestamp          string           `json:"timestamp"`
	UserID             string           `json:"user_id,omitempty"`
	PersonalityAnswers []session.Answer `json:"personality_answers"`
	MentalAnswers      []session.Answer `json:"mental_health_answers"`
	FinalReport        string           `json:"final_report"`
}

// Archive persists records. Save failures never reach the user.
type Archive interface {
	Save(ctx context.Context, rec Record) error
	Close() error
}

// NoneArchive discards records.
type NoneArchive struct{}

func (NoneArchive) Save(context.Context, Record) error { return nil }

func (NoneArchive) Close() error { return nil }

// Options selects an archive backend.
type Options struct {
	Store       string
	Dir         string
	PerSession  bool
	SQLitePath  string
	DatabaseURL string
	// RedactPII masks emails, card and phone numbers in answers before saving.
	RedactPII bool
}

func NewArchive(ctx context.Context, opts Options) (Archive, error) {
	a, err := newBackend(ctx, opts)
	if err != nil || !opts.RedactPII {
		return a, err
	}
	return redactingArchive{next: a}, nil
}

func newBackend(ctx context.Context, opts Options) (Archive, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Store)) {
	case "none":
		return NoneArchive{}, nil
	case "", "file":
		return NewFileArchive(opts.Dir, opts.PerSession), nil
	case "sqlite":
		return NewSQLiteArchive(opts.SQLitePath)
	case "postgres":
		return NewPostgresArchive(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported report store %q", opts.Store)
	}
}

func newRecord(userID string, personality, mental []session.Answer, finalReport string, now time.Time) Record {
	return Record{
		Timestamp:          now.Format(TimestampLayout),
		UserID:             userID,
		PersonalityAnswers: clone(personality),
		MentalAnswers:      clone(mental),
		FinalReport:        finalReport,
	}
}

func clone(in []session.Answer) []session.Answer {
	out := session.CloneAnswers(in)
	if out == nil {
		out = []session.Answer{}
	}
	return out
}
