package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	latestFile = "final_summary.json"
	plainFile  = "conclusion.txt"
)

// FileArchive writes the latest record to <dir>/final_summary.json and its plain
// rendering to <dir>/conclusion.txt, overwriting the previous ones. With perSession
// it also keeps a timestamped JSON copy per record.
type FileArchive struct {
	dir        string
	perSession bool

	mu sync.Mutex
}

func NewFileArchive(dir string, perSession bool) *FileArchive {
	if strings.TrimSpace(dir) == "" {
		dir = "conclusion"
	}
	return &FileArchive{dir: dir, perSession: perSession}
}

func (a *FileArchive) Save(_ context.Context, rec Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(a.dir, latestFile), buf.Bytes()); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(a.dir, plainFile), []byte(FormatPlain(rec))); err != nil {
		return err
	}
	if a.perSession {
		name := fmt.Sprintf("final_summary_%s_%s.json", time.Now().UTC().Format("20060102_150405"), safeName(rec.UserID))
		if err := writeFileAtomic(filepath.Join(a.dir, name), buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (a *FileArchive) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func safeName(s string) string {
	if s == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
