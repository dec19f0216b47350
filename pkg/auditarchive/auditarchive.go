// Package auditarchive ships a generated audit evidence pack to
// long-term, content-addressed storage. It needs nothing more than
// artifacts.Store, so the same call works whether that store is backed
// by S3, GCS, or the teacher's local filesystem implementation.
package auditarchive

import (
	"context"
	"fmt"

	"github.com/agenc/runtime/pkg/artifacts"
	"github.com/agenc/runtime/pkg/audit"
)

// Archiver persists generated audit evidence packs to a content-addressed
// artifact store for retention beyond the process's own lifetime.
type Archiver struct {
	exporter *audit.Exporter
	store    artifacts.Store
}

// NewArchiver constructs an Archiver over an existing audit Exporter and
// the destination artifact store (S3, GCS, or local, per what the
// caller constructed artifacts.Store as).
func NewArchiver(exporter *audit.Exporter, store artifacts.Store) *Archiver {
	return &Archiver{exporter: exporter, store: store}
}

// ArchiveResult reports where a generated pack landed.
type ArchiveResult struct {
	ContentHash string
	SizeBytes   int
}

// Archive generates an evidence pack per req and stores its bytes,
// returning the content hash the caller later passes to store.Get to
// retrieve it, or to store.Exists to confirm durability.
func (a *Archiver) Archive(ctx context.Context, req audit.ExportRequest) (ArchiveResult, error) {
	data, _, err := a.exporter.GeneratePack(ctx, req)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("auditarchive: generate pack: %w", err)
	}

	hash, err := a.store.Store(ctx, data)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("auditarchive: store pack: %w", err)
	}

	return ArchiveResult{ContentHash: hash, SizeBytes: len(data)}, nil
}

// Retrieve fetches a previously archived pack's raw bytes by content
// hash.
func (a *Archiver) Retrieve(ctx context.Context, contentHash string) ([]byte, error) {
	data, err := a.store.Get(ctx, contentHash)
	if err != nil {
		return nil, fmt.Errorf("auditarchive: retrieve pack %s: %w", contentHash, err)
	}
	return data, nil
}
