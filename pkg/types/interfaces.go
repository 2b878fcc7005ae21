package types

import (
	"context"
	"io"
)

// OriginStore is the read-only primary store objects are copied from.
type OriginStore interface {
	Stat(ctx context.Context, relativePath string) (*ObjectInfo, error)
	Open(ctx context.Context, relativePath string) (io.ReadCloser, error)
}

// LedgerStore persists the popularity ledger. Read reports found=false when
// no ledger has ever been written.
type LedgerStore interface {
	Read(ctx context.Context) (views map[string]int64, found bool, err error)
	Write(ctx context.Context, views map[string]int64) error
}

// EventFeed yields access events in log order. Next returns io.EOF at the
// end of the feed and a FEED_MALFORMED_EVENT error for skippable records.
type EventFeed interface {
	Next() (AccessEvent, error)
	Close() error
}

// ObjectSet is the read side of the cache inventory.
type ObjectSet interface {
	Get(relativePath string) (*MediaObject, bool)
	Cached() []*MediaObject
}

// RunRecorder receives placement outcomes as they happen.
type RunRecorder interface {
	RecordPlacement(volume string, size int64)
	RecordEviction(volume string, size int64)
	RecordFailure(reason string)
}
