package replaystore

import "context"

// Store is the interface every backend implements (spec's save/query/
// cursor/clear/flush contract).
type Store interface {
	Save(ctx context.Context, records []Record) (SaveResult, error)
	Query(ctx context.Context, filter Filter) ([]Record, error)
	GetCursor(ctx context.Context) (*Cursor, error)
	SaveCursor(ctx context.Context, cursor Cursor) error
	Clear(ctx context.Context) error
	Flush(ctx context.Context) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
