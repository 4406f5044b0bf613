package oplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shelf/internal/events"
)

// JournalStore manages the durable, append-only event journals: one JSONL file
// per operation id. Journals are never mutated after an operation ends; they
// remain available for post-mortem reads until retention pruning removes them.
type JournalStore struct {
	dir string

	mu    sync.Mutex
	files map[string]*journalFile
}

type journalFile struct {
	file *os.File
	enc  *json.Encoder
}

// NewJournalStore creates the journal directory if needed and returns a store
// rooted there.
func NewJournalStore(dir string) (*JournalStore, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("journal directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return &JournalStore{dir: trimmed, files: make(map[string]*journalFile)}, nil
}

// Path returns the journal file path for an operation id.
func (s *JournalStore) Path(opID string) string {
	return filepath.Join(s.dir, opID+".log")
}

// Append writes one event to its operation's journal.
func (s *JournalStore) Append(evt events.Event) error {
	if s == nil || evt.OperationID == "" {
		return errors.New("event requires an operation id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	jf, err := s.openLocked(evt.OperationID)
	if err != nil {
		return err
	}
	if err := jf.enc.Encode(evt); err != nil {
		return fmt.Errorf("append journal %s: %w", evt.OperationID, err)
	}
	return nil
}

// Read returns every event recorded for an operation, in append order.
func (s *JournalStore) Read(opID string) ([]events.Event, error) {
	file, err := os.Open(s.Path(opID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal %s: %w", opID, err)
	}
	defer file.Close()

	var out []events.Event
	decoder := json.NewDecoder(file)
	for {
		var evt events.Event
		if err := decoder.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("decode journal %s: %w", opID, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

// Release closes the write handle for a finished operation. The journal file
// stays on disk.
func (s *JournalStore) Release(opID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if jf, ok := s.files[opID]; ok {
		_ = jf.file.Close()
		delete(s.files, opID)
	}
}

// Close releases all open journal handles.
func (s *JournalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for id, jf := range s.files {
		if err := jf.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, id)
	}
	return firstErr
}

// Prune removes journal files whose last modification is older than maxAge and
// that have no open write handle. It returns the number of files removed.
func (s *JournalStore) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read journal directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		opID := strings.TrimSuffix(entry.Name(), ".log")
		s.mu.Lock()
		_, open := s.files[opID]
		s.mu.Unlock()
		if open {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *JournalStore) openLocked(opID string) (*journalFile, error) {
	if jf, ok := s.files[opID]; ok {
		return jf, nil
	}
	file, err := os.OpenFile(s.Path(opID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", opID, err)
	}
	jf := &journalFile{file: file, enc: json.NewEncoder(file)}
	s.files[opID] = jf
	return jf, nil
}
