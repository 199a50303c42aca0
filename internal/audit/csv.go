package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/pkg/models"
)

// Header is the first row of every CSV ledger.
var Header = []string{"date", "address", "query", "response"}

// ledgerFile is the part of *os.File the ledger uses.
type ledgerFile interface {
	io.Writer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// CSVLedger appends rows to a CSV file. Each row is encoded in memory and
// handed to the file in a single write under the mutex, so concurrent
// appends never interleave. A failed write is cut back to the previous end
// of file.
type CSVLedger struct {
	mu   sync.Mutex
	f    ledgerFile
	path string
}

// OpenCSV opens path for appending, creating it and its parent directory if
// needed. The header is written only when the file is new or empty; an
// existing ledger is never truncated.
func OpenCSV(path string) (*CSVLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat audit log: %w", err)
	}
	if st.Size() == 0 {
		row, err := encodeCSV(Header)
		if err == nil {
			_, err = f.Write(row)
		}
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		log.Info().Str("path", path).Msg("audit log created")
	}
	return &CSVLedger{f: f, path: path}, nil
}

// Path returns the file the ledger writes to.
func (l *CSVLedger) Path() string { return l.path }

func (l *CSVLedger) Append(ctx context.Context, rec models.AuditRecord) error {
	row, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	st, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("stat audit log: %w", err)
	}
	if _, err := l.f.Write(row); err != nil {
		if terr := l.f.Truncate(st.Size()); terr != nil {
			log.Error().Err(terr).Str("path", l.path).Msg("audit log left with a partial row")
		}
		return fmt.Errorf("append audit row: %w", err)
	}
	return l.f.Sync()
}

// Ping reports ErrClosed once the ledger has been closed.
func (l *CSVLedger) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	return nil
}

func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func encodeRecord(rec models.AuditRecord) ([]byte, error) {
	resp, err := json.Marshal(rec.Response)
	if err != nil {
		return nil, fmt.Errorf("encode audit response: %w", err)
	}
	return encodeCSV([]string{
		rec.Date.Format(time.RFC3339Nano),
		rec.Address,
		rec.Query,
		string(resp),
	})
}

func encodeCSV(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
