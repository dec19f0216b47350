package replaystore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"
)

// fileState is the whole-file JSON representation FileStore reads and
// rewrites on every mutation.
type fileState struct {
	Records []Record `json:"records"`
	NextSeq uint64   `json:"nextSeq"`
	Cursor  *Cursor  `json:"cursor,omitempty"`
}

// FileStore is the whole-file JSON Store backend: durable across process
// restarts without a database dependency. Advisory operational cap:
// degrades past roughly 512 MiB, since every write rereads and rewrites
// the entire file.
type FileStore struct {
	path  string
	mu    sync.Mutex
	cfg   Config
	state fileState
	nowFn func() int64
}

// NewFileStore opens (or creates) the JSON file at path and loads its
// current contents.
func NewFileStore(path string, cfg Config) (*FileStore, error) {
	fs := &FileStore{path: path, cfg: cfg, state: fileState{NextSeq: 1}, nowFn: func() int64 { return time.Now().UnixMilli() }}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	bytes, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes) == 0 {
		return nil
	}
	var state fileState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return err
	}
	if state.NextSeq == 0 {
		state.NextSeq = 1
	}
	f.state = state
	return nil
}

func (f *FileStore) save() error {
	bytes, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, bytes, 0o600)
}

func (f *FileStore) Save(ctx context.Context, incoming []Record) (SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged, nextSeq, result, err := mergeSave(f.state.Records, f.state.NextSeq, incoming)
	if err != nil {
		return SaveResult{}, err
	}
	f.state.Records = applyRetention(merged, f.cfg.Retention, f.nowFn())
	f.state.NextSeq = nextSeq
	if err := f.save(); err != nil {
		return SaveResult{}, err
	}
	return result, nil
}

func (f *FileStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterAndPage(f.state.Records, filter), nil
}

func (f *FileStore) GetCursor(ctx context.Context) (*Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Cursor == nil {
		return nil, nil
	}
	cursor := *f.state.Cursor
	return &cursor, nil
}

func (f *FileStore) SaveCursor(ctx context.Context, cursor Cursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Cursor = &cursor
	return f.save()
}

func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = fileState{NextSeq: 1}
	return f.save()
}

// Flush is a no-op: every mutating call above already rewrites the file
// synchronously before returning.
func (f *FileStore) Flush(ctx context.Context) error { return nil }
