package ports

import "github.com/fasanicam/ferme-dashboard/internal/domain"

type WALEntryID uint64

type WAL interface {
	Append(r *domain.Record) (WALEntryID, error)
	Iterate(from WALEntryID, fn func(id WALEntryID, r *domain.Record) error) error
	Commit(upto WALEntryID) error
	TruncateCommitted() error
	Stats() WALStats
	Close() error
}

type WALStats struct {
	OldestUncommitted WALEntryID
	LatestAppended    WALEntryID
	SizeBytes         int64
}
