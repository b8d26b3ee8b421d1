// Package coordinator keeps a client-side table of review list pages and
// applies create, update and delete to it before the server confirms them.
// Confirmed mutations are reconciled with the server's record and invalidate
// the table; failed ones are rolled back.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/internal/validation"
	"github.com/sirupsen/logrus"
)

// ErrSuperseded is returned by Fetch when a later fetch for the same key was
// issued before this one completed. Its result is discarded.
var ErrSuperseded = errors.New("fetch superseded by a later request")

// API is the remote side. Satisfied by client.Client.
type API interface {
	ListReviews(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error)
	CreateReview(ctx context.Context, input models.ReviewInput) (*models.Review, error)
	UpdateReview(ctx context.Context, id uint, input models.ReviewInput) (*models.Review, error)
	DeleteReview(ctx context.Context, id uint) error
}

// Key identifies one cached page.
type Key struct {
	Filter models.ReviewFilter
	Page   int
}

// NewKey normalises page the same way the server does.
func NewKey(filter models.ReviewFilter, page int) Key {
	if page < 1 {
		page = 1
	}
	return Key{Filter: filter, Page: page}
}

// EntryState is a copy of one cache entry.
type EntryState struct {
	Result    models.PageResult
	Pending   int
	Stale     bool
	FetchedAt time.Time
}

type Options struct {
	// PageSize must match the server so speculative creates land on the right page.
	PageSize int
	// Timeout bounds every network call. Zero means no extra bound.
	Timeout time.Duration
}

type Coordinator struct {
	api      API
	logger   *logrus.Logger
	pageSize int
	timeout  time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
	seq     map[Key]uint64 // latest in-flight fetch per key
	issued  uint64
	epoch   uint64
	token   uint64

	ids *keyedMutex
}

type entry struct {
	rows      []row
	pages     int
	authors   []string
	pending   int
	stale     bool
	fetchedAt time.Time
}

// row is a cached review. A non-zero token marks a speculative create that
// has no server id yet.
type row struct {
	review models.Review
	token  uint64
}

// touched records what a mutation changed in one entry so it can be reverted.
type touched struct {
	key   Key
	e     *entry
	index int
	prev  models.Review
}

func New(api API, opts Options, logger *logrus.Logger) *Coordinator {
	if opts.PageSize < 1 {
		opts.PageSize = models.DefaultPageSize
	}
	return &Coordinator{
		api:      api,
		logger:   logger,
		pageSize: opts.PageSize,
		timeout:  opts.Timeout,
		entries:  make(map[Key]*entry),
		seq:      make(map[Key]uint64),
		ids:      newKeyedMutex(),
	}
}

// Load returns the cached page when it is fresh and otherwise fetches it.
func (c *Coordinator) Load(ctx context.Context, key Key) (*models.PageResult, error) {
	key = NewKey(key.Filter, key.Page)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.stale {
		result := e.snapshot()
		c.mu.Unlock()
		return &result, nil
	}
	c.mu.Unlock()

	return c.Fetch(ctx, key)
}

// Fetch always asks the server. Only the most recently issued fetch for a key
// may store its result; earlier ones get ErrSuperseded. Fetch numbers are
// unique across keys so a key's entry in seq can be dropped once its latest
// fetch returns. A result that arrives
// while the entry has unsettled mutations, or after an invalidation that
// happened mid-flight, is returned but not stored. A failed fetch leaves the
// existing entry as it was.
func (c *Coordinator) Fetch(ctx context.Context, key Key) (*models.PageResult, error) {
	key = NewKey(key.Filter, key.Page)

	c.mu.Lock()
	c.issued++
	issued := c.issued
	c.seq[key] = issued
	epoch := c.epoch
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	res, err := c.api.ListReviews(callCtx, key.Filter, key.Page)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seq[key] != issued {
		return nil, ErrSuperseded
	}
	delete(c.seq, key)
	if err != nil {
		c.logger.WithError(err).WithField("page", key.Page).Warn("Review list fetch failed")
		return nil, err
	}

	fresh := newEntry(res)
	out := fresh.snapshot()

	existing, ok := c.entries[key]
	switch {
	case ok && existing.pending > 0:
		existing.stale = true
	case c.epoch != epoch:
		// invalidated while in flight; the next Load refetches
	default:
		c.entries[key] = fresh
	}
	return &out, nil
}

// Snapshot returns the current state of a cached page.
func (c *Coordinator) Snapshot(key Key) (EntryState, bool) {
	key = NewKey(key.Filter, key.Page)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return EntryState{}, false
	}
	return EntryState{
		Result:    e.snapshot(),
		Pending:   e.pending,
		Stale:     e.stale,
		FetchedAt: e.fetchedAt,
	}, true
}

// Invalidate drops every idle entry and marks busy ones stale so they are
// dropped once their mutations settle.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Coordinator) invalidateLocked() {
	c.epoch++
	for key, e := range c.entries {
		if e.pending == 0 {
			delete(c.entries, key)
			continue
		}
		e.stale = true
	}
}

// Create shows the draft on every cached page it would land on, then sends
// it. On success the speculative row becomes the server's record and the
// table is invalidated. On failure only the speculative row is removed.
func (c *Coordinator) Create(ctx context.Context, draft validation.Draft) (*models.Review, error) {
	if !draft.Valid() {
		return nil, models.NewValidationError("", "Invalid body")
	}
	preview := draft.Preview()

	c.mu.Lock()
	c.token++
	token := c.token
	var affected []touched
	for key, e := range c.entries {
		if !key.Filter.Matches(preview) || !c.hasRoom(key, e) {
			continue
		}
		e.rows = append(e.rows, row{review: preview, token: token})
		e.pending++
		affected = append(affected, touched{key: key, e: e})
	}
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	created, err := c.api.CreateReview(callCtx, draft.Input())
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range affected {
		i := t.e.indexOfToken(token)
		if i >= 0 {
			if err != nil {
				t.e.rows = append(t.e.rows[:i], t.e.rows[i+1:]...)
			} else {
				t.e.rows[i] = row{review: *created}
			}
		}
		c.settleLocked(t)
	}

	if err != nil {
		c.logger.WithError(err).WithField("speculative_pages", len(affected)).Warn("Review create rolled back")
		return nil, err
	}

	c.invalidateLocked()
	c.logger.WithField("review_id", created.ID).Debug("Review create confirmed")
	return created, nil
}

// Update replaces the cached review with the draft, then sends it. An id no
// cached page holds is rejected as a stale reference without a request.
func (c *Coordinator) Update(ctx context.Context, id uint, draft validation.Draft) (*models.Review, error) {
	if !draft.Valid() {
		return nil, models.NewValidationError("", "Invalid body")
	}

	unlock, err := c.ids.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	input := draft.Input()

	c.mu.Lock()
	affected := c.touchLocked(id, func(e *entry, i int) {
		e.rows[i].review = input.Apply(e.rows[i].review)
	})
	if len(affected) == 0 {
		c.invalidateLocked()
		c.mu.Unlock()
		return nil, models.NewStaleReferenceError(id, nil)
	}
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	updated, err := c.api.UpdateReview(callCtx, id, input)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range affected {
		if i := t.e.indexOfID(id); i >= 0 {
			if err != nil {
				t.e.rows[i].review = t.prev
			} else {
				t.e.rows[i].review = *updated
			}
		}
		c.settleLocked(t)
	}

	if err != nil {
		return nil, c.failedLocked("update", id, err)
	}

	c.invalidateLocked()
	c.logger.WithField("review_id", id).Debug("Review update confirmed")
	return updated, nil
}

// Delete removes the review from every cached page, then sends the request.
// An uncached id is still sent; the server decides whether it exists.
func (c *Coordinator) Delete(ctx context.Context, id uint) error {
	unlock, err := c.ids.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c.mu.Lock()
	affected := c.touchLocked(id, func(e *entry, i int) {
		e.rows = append(e.rows[:i], e.rows[i+1:]...)
	})
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	err = c.api.DeleteReview(callCtx, id)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range affected {
		if err != nil && t.e.indexOfID(id) < 0 {
			t.e.insert(t.index, t.prev)
		}
		c.settleLocked(t)
	}

	if err != nil {
		if len(affected) == 0 {
			return err
		}
		return c.failedLocked("delete", id, err)
	}

	c.invalidateLocked()
	c.logger.WithField("review_id", id).Debug("Review delete confirmed")
	return nil
}

// touchLocked applies change to every entry holding id and records the prior
// row for rollback.
func (c *Coordinator) touchLocked(id uint, change func(e *entry, i int)) []touched {
	var affected []touched
	for key, e := range c.entries {
		i := e.indexOfID(id)
		if i < 0 {
			continue
		}
		affected = append(affected, touched{key: key, e: e, index: i, prev: e.rows[i].review})
		change(e, i)
		e.pending++
	}
	return affected
}

// failedLocked turns a server 404 for a cached id into a stale reference and
// forces a refetch.
func (c *Coordinator) failedLocked(op string, id uint, err error) error {
	log := c.logger.WithError(err).WithFields(logrus.Fields{
		"review_id": id,
		"operation": op,
	})
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("Review no longer exists on the server")
		c.invalidateLocked()
		return models.NewStaleReferenceError(id, err)
	}
	log.Warn("Review mutation rolled back")
	return err
}

// settleLocked ends one mutation's hold on an entry. A stale entry is dropped
// once nothing is pending on it.
func (c *Coordinator) settleLocked(t touched) {
	t.e.pending--
	if t.e.pending == 0 && t.e.stale && c.entries[t.key] == t.e {
		delete(c.entries, t.key)
	}
}

// hasRoom reports whether key is the last page of its result and can take one
// more review. An empty result still has page 1.
func (c *Coordinator) hasRoom(key Key, e *entry) bool {
	return key.Page == max(e.pages, 1) && len(e.rows) < c.pageSize
}

func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func newEntry(res *models.PageResult) *entry {
	e := &entry{
		rows:      make([]row, len(res.Reviews)),
		pages:     res.Pages,
		authors:   append([]string{}, res.UniqueAuthors...),
		fetchedAt: time.Now(),
	}
	for i, r := range res.Reviews {
		e.rows[i] = row{review: r}
	}
	return e
}

func (e *entry) snapshot() models.PageResult {
	reviews := make([]models.Review, len(e.rows))
	for i, r := range e.rows {
		reviews[i] = r.review
	}
	return models.PageResult{
		Reviews:       reviews,
		Pages:         e.pages,
		UniqueAuthors: append([]string{}, e.authors...),
	}
}

func (e *entry) indexOfID(id uint) int {
	for i, r := range e.rows {
		if r.token == 0 && r.review.ID == id {
			return i
		}
	}
	return -1
}

func (e *entry) indexOfToken(token uint64) int {
	for i, r := range e.rows {
		if r.token == token {
			return i
		}
	}
	return -1
}

func (e *entry) insert(i int, r models.Review) {
	if i > len(e.rows) {
		i = len(e.rows)
	}
	e.rows = append(e.rows, row{})
	copy(e.rows[i+1:], e.rows[i:])
	e.rows[i] = row{review: r}
}
