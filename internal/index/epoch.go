package index

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
)

// Handle pins one epoch for the duration of a query. Every Acquire must be
// paired with exactly one Release; an epoch directory is only retired once
// its last handle is released.
type Handle struct {
	reader *Reader
	state  *epochState
	once   sync.Once
}

// Reader returns the pinned epoch reader.
func (h *Handle) Reader() *Reader { return h.reader }

// Epoch returns the pinned epoch number.
func (h *Handle) Epoch() uint64 { return h.reader.Epoch }

// Release drops the pin. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() { h.state.release() })
}

type epochState struct {
	reader  *Reader
	refs    atomic.Int64
	retired atomic.Bool
}

func (s *epochState) release() {
	if s.refs.Add(-1) == 0 && s.retired.Load() {
		// Last reader of a retired epoch; nothing to close since the
		// reader is fully memory-resident, the slices just become
		// collectable.
		s.reader = nil
	}
}

// Manager owns the live epoch pointer and swaps it atomically when a new
// epoch is published. Queries in flight keep serving the epoch they pinned.
type Manager struct {
	root    string
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex // serializes Reload
	current atomic.Pointer[epochState]
}

// NewManager loads the epoch named by the current pointer file under root.
// A missing pointer file is not an error: the manager starts empty and
// Acquire returns UNAVAILABLE until the first Reload finds an epoch.
func NewManager(root string, m *metrics.Metrics) (*Manager, error) {
	mgr := &Manager{
		root:    root,
		log:     logger.WithComponent("epoch-manager"),
		metrics: m,
	}
	if err := mgr.Reload(); err != nil {
		if os.IsNotExist(err) {
			mgr.log.Warn("no published epoch yet", "root", root)
			return mgr, nil
		}
		return nil, err
	}
	return mgr, nil
}

// Acquire pins the live epoch. It fails with UNAVAILABLE when no epoch has
// been published.
func (m *Manager) Acquire() (*Handle, error) {
	for {
		st := m.current.Load()
		if st == nil {
			return nil, apperrors.New(apperrors.ErrUpstreamUnavailable, "no index epoch is loaded")
		}
		st.refs.Add(1)
		// The swap may have retired st between Load and Add; retry on
		// the fresh pointer rather than hand out a dying epoch.
		if m.current.Load() == st {
			return &Handle{reader: st.reader, state: st}, nil
		}
		st.release()
	}
}

// Root returns the index root directory the manager watches.
func (m *Manager) Root() string { return m.root }

// CurrentEpoch returns the live epoch number, or 0 when none is loaded.
func (m *Manager) CurrentEpoch() uint64 {
	if st := m.current.Load(); st != nil {
		return st.reader.Epoch
	}
	return 0
}

// Reload re-reads the current pointer file and, if it names a different
// epoch, opens and swaps it in. The previous epoch is retired and freed
// once its in-flight queries release their handles.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	epoch, err := ReadCurrentEpoch(m.root)
	if err != nil {
		return err
	}
	if st := m.current.Load(); st != nil && st.reader.Epoch == epoch {
		return nil
	}

	reader, err := OpenEpoch(m.root, epoch)
	if err != nil {
		return err
	}
	next := &epochState{reader: reader}
	next.refs.Add(1) // the manager's own reference

	prev := m.current.Swap(next)
	if prev != nil {
		prev.retired.Store(true)
		prev.release()
	}

	if m.metrics != nil {
		m.metrics.CurrentEpoch.Set(float64(epoch))
		m.metrics.EpochReloads.WithLabelValues("ok").Inc()
	}
	m.log.Info("epoch loaded",
		"epoch", epoch,
		"docs", reader.Manifest.DocCount,
		"lexTerms", reader.Lex.TermCount(),
		"ngramTerms", reader.NGram.TermCount())
	return nil
}

// WatchCurrent polls the current pointer file until ctx is done. It is the
// fallback path when no publish notification arrives over the bus.
func (m *Manager) WatchCurrent(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Reload(); err != nil && !os.IsNotExist(err) {
				m.log.Error("epoch reload failed", "error", err)
			}
		}
	}
}
