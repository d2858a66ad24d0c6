package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/anees/internal/llm"
	"github.com/ent0n29/anees/internal/retrieval"
	"github.com/ent0n29/anees/internal/session"
)

type stubCompleter struct {
	reply string
	err   error
	got   llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	s.got = req
	return s.reply, s.err
}

type memArchive struct {
	saved []Record
	err   error
}

func (m *memArchive) Save(_ context.Context, rec Record) error {
	m.saved = append(m.saved, rec)
	return m.err
}

func (m *memArchive) Close() error { return nil }

type countingRetriever struct{ n int }

func (c *countingRetriever) Retrieve(_ context.Context, _ string, n int) (retrieval.Result, error) {
	c.n = n
	return retrieval.Result{}, nil
}

func (c *countingRetriever) Close() error { return nil }

func answers(prefix string, n int) []session.Answer {
	out := make([]session.Answer, n)
	for i := range out {
		out[i] = session.Answer{Question: prefix + " q", Options: []string{"A) " + prefix, "B) other"}, Answer: prefix + " a"}
	}
	return out
}

func TestSynthesizeArchivesSuccessfulReport(t *testing.T) {
	c := &stubCompleter{reply: "Important Notice\n..."}
	a := &memArchive{}
	r := &countingRetriever{}
	s := NewSynthesizer(r, c, a, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

	long := strings.Repeat("y", 170)
	mental := []session.Answer{{Question: "How are you?", Answer: "line one\nline two"}, {Question: "Sleep?", Answer: long}}
	personality := answers("p", 5)
	got := s.Synthesize(context.Background(), "u1", personality, mental, nil)
	personality[0].Options[0] = "mutated"

	assert.Equal(t, "Important Notice\n...", got)
	assert.Equal(t, 20, r.n)
	assert.InDelta(t, 0.3, c.got.Temperature, 1e-6)
	assert.Equal(t, 900, c.got.MaxTokens)
	assert.Contains(t, c.got.User, "1. Q: How are you? | A: line one line two\n")
	assert.Contains(t, c.got.User, "2. Q: Sleep? | A: "+strings.Repeat("y", 160)+"...\n")
	assert.Contains(t, c.got.User, retrieval.NoContentSentinel)

	require.Len(t, a.saved, 1)
	rec := a.saved[0]
	assert.Equal(t, "2026-03-01 09:30:00", rec.Timestamp)
	assert.Equal(t, "u1", rec.UserID)
	assert.Len(t, rec.PersonalityAnswers, 5)
	assert.Equal(t, []string{"A) p", "B) other"}, rec.PersonalityAnswers[0].Options)
	assert.Equal(t, long, rec.MentalAnswers[1].Answer)
}

func TestSynthesizeFallbackIsNotArchived(t *testing.T) {
	a := &memArchive{}
	s := NewSynthesizer(nil, &stubCompleter{err: errors.New("timeout")}, a, nil, nil)
	assert.Equal(t, Fallback, s.Synthesize(context.Background(), "u1", nil, nil, nil))
	assert.Empty(t, a.saved)
}

func TestSynthesizeIgnoresArchiveFailure(t *testing.T) {
	a := &memArchive{err: errors.New("disk full")}
	s := NewSynthesizer(nil, &stubCompleter{reply: "report"}, a, nil, nil)
	assert.Equal(t, "report", s.Synthesize(context.Background(), "u1", nil, nil, nil))
}

func TestFileArchiveWritesIndentedJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conclusion")
	a := NewFileArchive(dir, true)
	rec := Record{Timestamp: "2026-03-01 09:30:00", UserID: "u/1", PersonalityAnswers: answers("p", 1), MentalAnswers: answers("m", 1), FinalReport: "café <ok>"}
	require.NoError(t, a.Save(context.Background(), rec))

	raw, err := os.ReadFile(filepath.Join(dir, "final_summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"timestamp\": \"2026-03-01 09:30:00\"")
	assert.Contains(t, string(raw), "café <ok>")

	var back Record
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec, back)

	plain, err := os.ReadFile(filepath.Join(dir, "conclusion.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(plain), "Assessment Report - 2026-03-01 09:30:00"))

	matches, err := filepath.Glob(filepath.Join(dir, "final_summary_*_u_1.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	a, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "data", "reports.db"))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Save(ctx, Record{Timestamp: "t1", UserID: "u1", PersonalityAnswers: answers("p", 2), MentalAnswers: answers("m", 1), FinalReport: "first"}))
	require.NoError(t, a.Save(ctx, Record{Timestamp: "t2", UserID: "u1", FinalReport: "second"}))
	require.NoError(t, a.Save(ctx, Record{Timestamp: "t3", UserID: "u2", FinalReport: "other"}))

	got, err := a.Latest(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].FinalReport)
	assert.Equal(t, "first", got[1].FinalReport)
	require.Len(t, got[1].PersonalityAnswers, 2)
	assert.Equal(t, []string{"A) p", "B) other"}, got[1].PersonalityAnswers[1].Options)
}

func TestNewArchiveSelectsBackend(t *testing.T) {
	a, err := NewArchive(context.Background(), Options{Store: "none"})
	require.NoError(t, err)
	assert.IsType(t, NoneArchive{}, a)

	a, err = NewArchive(context.Background(), Options{Store: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileArchive{}, a)

	_, err = NewArchive(context.Background(), Options{Store: "s3"})
	assert.Error(t, err)
}

func TestFormatPlain(t *testing.T) {
	rec := Record{
		Timestamp:          "2026-03-01 09:30:00",
		PersonalityAnswers: []session.Answer{
			{Question: "Free time?", Options: []string{"A) Friends", "B) Books"}, Answer: "A) Friends"},
			{Question: "Plans?", Answer: "B) Later"},
		},
		MentalAnswers: []session.Answer{{Question: "Mood?", Answer: strings.Repeat("z", 250)}, {Question: "", Answer: ""}},
		FinalReport:   "All good.",
	}
	out := FormatPlain(rec)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Assessment Report - 2026-03-01 09:30:00", lines[0])
	assert.Equal(t, strings.Repeat("=", 50), lines[1])
	assert.Contains(t, out, "Q1: Free time?\nOptions: A) Friends | B) Books\nAnswer: A) Friends\n")
	assert.Contains(t, out, "Q2: Plans?\nAnswer: B) Later\n")
	assert.Contains(t, out, "Answer: "+strings.Repeat("z", 197)+"...\n")
	assert.Contains(t, out, "Q2: N/A\nAnswer: N/A\n")
	assert.True(t, strings.HasSuffix(out, "INTEGRATED SUMMARY\n"+strings.Repeat("-", 30)+"\nAll good."))
}
