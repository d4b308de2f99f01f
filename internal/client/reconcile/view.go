// Package reconcile keeps one in-memory view list consistent under an
// initial bulk load, a stream of change-feed events, and user-driven filter
// or sort changes, with an optional merge of locally cached fallback records.
//
// A View is the single place where the "read remote, patch with events,
// merge local" decision is made; the per-screen copies of this logic in the
// original application all collapse into it.
package reconcile

import (
	"context"
	"sync"

	"github.com/campusfix/campusfix/internal/client/fallback"
	"github.com/campusfix/campusfix/internal/client/feed"
	"github.com/campusfix/campusfix/internal/client/remote"
	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
)

// State is the lifecycle phase of a View.
type State int

const (
	// StateLoading means the initial fetch for the current filter/sort is in
	// flight; buffered events are replayed once it lands.
	StateLoading State = iota

	// StateLive means the list reflects the last successful fetch patched by
	// every event received since.
	StateLive

	// StateErrored means the fetch failed. The last-known-good snapshot is
	// retained; callers should render it stale with a retry affordance.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Fetcher is the slice of the remote store accessor a view needs.
type Fetcher interface {
	FetchPage(ctx context.Context, collection models.Collection, filter models.Filter, sort models.Sort, offset, limit int) (remote.Page, error)
}

// Teardown is the handle side of a feed subscription.
type Teardown interface {
	Unsubscribe()
}

// FeedSource opens change-feed subscriptions.
type FeedSource interface {
	Subscribe(ctx context.Context, collection models.Collection, predicate *feed.Predicate, handler feed.Handler) (Teardown, error)
}

// NewFeedSource adapts the concrete subscriber to the FeedSource interface.
func NewFeedSource(s *feed.Subscriber) FeedSource {
	return feedSource{s: s}
}

type feedSource struct {
	s *feed.Subscriber
}

func (f feedSource) Subscribe(ctx context.Context, c models.Collection, p *feed.Predicate, h feed.Handler) (Teardown, error) {
	return f.s.Subscribe(ctx, c, p, h)
}

// Options fix what one view shows.
type Options struct {
	Collection models.Collection
	Filter     models.Filter
	Sort       models.Sort
	PageSize   int

	// OnChange, when set, receives a fresh snapshot after every mutation.
	// It runs on the mutating goroutine and must not call back into the View.
	OnChange func([]models.Entity)
}

const defaultPageSize = 50

// View owns one ordered entity list. All methods are safe for concurrent use;
// mutations are serialized so events apply strictly in arrival order.
type View struct {
	store  Fetcher
	feeds  FeedSource
	cache  *fallback.Cache
	logger logging.Logger

	mu      sync.Mutex
	opts    Options
	state   State
	lastErr error
	total   int
	items   []models.Entity
	sub     Teardown

	// epoch invalidates in-flight fetches and torn-down subscriptions; a
	// resolution carrying a stale epoch never touches the list.
	epoch int

	// pending buffers events that arrive before the initial fetch resolves.
	pending []models.ChangeEvent
}

// NewView creates a view. feeds and cache may be nil: without feeds the view
// is a static snapshot, without cache MergeFallback fails.
func NewView(store Fetcher, feeds FeedSource, cache *fallback.Cache, logger logging.Logger, opts Options) *View {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &View{
		store:  store,
		feeds:  feeds,
		cache:  cache,
		logger: logger.With("module", "reconcile", "collection", opts.Collection),
		opts:   opts,
		state:  StateLoading,
	}
}

// Load performs the initial fetch and opens the change-feed subscription for
// the current filter. It is also what filter/sort changes call to re-enter
// Loading. Returns the fetch error, if any; a feed failure alone is not an
// error (the view degrades to a static snapshot).
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	v.epoch++
	epoch := v.epoch
	v.state = StateLoading
	v.lastErr = nil
	v.pending = nil
	opts := v.opts
	old := v.sub
	v.sub = nil
	v.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}

	// Subscribe before fetching so no event in the gap is lost; events that
	// race the fetch are buffered and replayed onto the baseline.
	v.subscribe(ctx, epoch, opts)

	page, err := v.store.FetchPage(ctx, opts.Collection, opts.Filter, opts.Sort, 0, opts.PageSize)

	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch != v.epoch {
		// Superseded by a newer Load or Close; discard.
		return nil
	}
	if err != nil {
		v.state = StateErrored
		v.lastErr = err
		// Last-known-good items are retained deliberately.
		return err
	}

	v.items = dedupeByID(page.Rows)
	v.total = page.Total
	v.state = StateLive
	for _, ev := range v.pending {
		v.applyLocked(ev)
	}
	v.pending = nil
	v.notifyLocked()
	return nil
}

func (v *View) subscribe(ctx context.Context, epoch int, opts Options) {
	if v.feeds == nil {
		return
	}
	sub, err := v.feeds.Subscribe(ctx, opts.Collection, subscriptionPredicate(opts.Filter), func(ev models.ChangeEvent) {
		v.onEvent(epoch, ev)
	})
	if err != nil {
		// Degrade to static snapshot; data already shown stays correct,
		// it just stops moving. No error surfaces to the caller.
		v.logger.Warn(ctx, "change feed unavailable, view degrades to static snapshot", "error", err)
		return
	}

	v.mu.Lock()
	if epoch != v.epoch {
		v.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	v.sub = sub
	v.mu.Unlock()
}

func (v *View) onEvent(epoch int, ev models.ChangeEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch != v.epoch {
		return
	}
	if v.state == StateLoading {
		v.pending = append(v.pending, ev)
		return
	}
	v.applyLocked(ev)
	v.notifyLocked()
}

// SetFilter changes the active filter and reloads: new fetch, new
// subscription scoped to the new predicate.
func (v *View) SetFilter(ctx context.Context, filter models.Filter) error {
	v.mu.Lock()
	v.opts.Filter = filter
	v.mu.Unlock()
	return v.Load(ctx)
}

// SetSort changes the sort order and reloads.
func (v *View) SetSort(ctx context.Context, sort models.Sort) error {
	v.mu.Lock()
	v.opts.Sort = sort
	v.mu.Unlock()
	return v.Load(ctx)
}

// Close tears down the subscription and invalidates in-flight work. The view
// must not be used afterwards except for Snapshot.
func (v *View) Close() {
	v.mu.Lock()
	v.epoch++
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Snapshot returns a copy of the current list.
func (v *View) Snapshot() []models.Entity {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Entity, len(v.items))
	copy(out, v.items)
	return out
}

// State reports the current lifecycle phase.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the fetch error that moved the view to StateErrored, or nil.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Total is the remote store's count for the active filter, independent of
// page size.
func (v *View) Total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

func (v *View) notifyLocked() {
	if v.opts.OnChange == nil {
		return
	}
	out := make([]models.Entity, len(v.items))
	copy(out, v.items)
	v.opts.OnChange(out)
}

func dedupeByID(rows []models.Entity) []models.Entity {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, e := range rows {
		id := e.Meta().ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, e)
	}
	return out
}
