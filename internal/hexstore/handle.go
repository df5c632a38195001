package hexstore

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/citypath/internal/store"
)

// TableReader returns the persisted table.
type TableReader interface {
	ReadTable(ctx context.Context) (*store.RawTable, error)
}

// Handle owns the lazily loaded snapshot. The first Load reads and
// validates the table; every later call returns the same snapshot (or the
// same error). There is no refresh: new data needs a new process.
type Handle struct {
	reader TableReader

	once sync.Once
	snap *Snapshot
	err  error
}

// NewHandle creates a Handle that loads from reader on first use.
func NewHandle(reader TableReader) *Handle {
	return &Handle{reader: reader}
}

// Load returns the snapshot, loading it on the first call. Concurrent
// first callers block until the single load finishes.
func (h *Handle) Load(ctx context.Context) (*Snapshot, error) {
	h.once.Do(func() {
		// The result is shared by every caller, so the first caller's
		// cancellation must not decide it.
		tbl, err := h.reader.ReadTable(context.WithoutCancel(ctx))
		if err != nil {
			h.err = eris.Wrap(err, "hexstore: load table")
			return
		}
		snap, err := FromTable(tbl)
		if err != nil {
			h.err = err
			return
		}
		h.snap = snap
		zap.L().Info("hexstore: snapshot loaded",
			zap.Int("raw_rows", len(tbl.Rows)),
			zap.Int("rows", snap.Len()),
		)
	})
	return h.snap, h.err
}

type ctxKey struct{}

// WithHandle returns a context carrying h.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, ctxKey{}, h)
}

// FromContext returns the Handle stored by WithHandle.
func FromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(ctxKey{}).(*Handle)
	return h, ok && h != nil
}

// SnapshotFromContext loads the snapshot of the Handle in ctx.
func SnapshotFromContext(ctx context.Context) (*Snapshot, error) {
	h, ok := FromContext(ctx)
	if !ok {
		return nil, eris.New("hexstore: no handle in context")
	}
	return h.Load(ctx)
}
