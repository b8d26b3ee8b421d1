package coordinator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/internal/validation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListReviews(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error) {
	args := m.Called(ctx, filter, page)
	result, _ := args.Get(0).(*models.PageResult)
	return result, args.Error(1)
}

func (m *mockAPI) CreateReview(ctx context.Context, input models.ReviewInput) (*models.Review, error) {
	args := m.Called(ctx, input)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *mockAPI) UpdateReview(ctx context.Context, id uint, input models.ReviewInput) (*models.Review, error) {
	args := m.Called(ctx, id, input)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *mockAPI) DeleteReview(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func review(id uint, title, author string, rating int) models.Review {
	return models.Review{ID: id, Title: title, Content: "c", Author: author, Rating: rating, CreatedAt: time.Unix(int64(id), 0)}
}

func page(pages int, reviews ...models.Review) *models.PageResult {
	return &models.PageResult{Reviews: reviews, Pages: pages, UniqueAuthors: []string{"Ann", "Bob"}}
}

func newDraft(t *testing.T, title, author string, rating int) validation.Draft {
	t.Helper()
	d, err := validation.NewDraft(models.ReviewInput{Title: title, Content: "c", Author: author, Rating: rating})
	require.NoError(t, err)
	return d
}

func ids(result models.PageResult) []uint {
	out := make([]uint, len(result.Reviews))
	for i, r := range result.Reviews {
		out[i] = r.ID
	}
	return out
}

// seeded returns a coordinator with page 1 (all) cached.
func seeded(t *testing.T, api *mockAPI, pageSize int, res *models.PageResult) (*Coordinator, Key) {
	t.Helper()
	c := New(api, Options{PageSize: pageSize, Timeout: time.Second}, quietLogger())
	key := NewKey(models.ReviewFilter{}, 1)
	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(res, nil).Once()
	_, err := c.Fetch(t.Context(), key)
	require.NoError(t, err)
	return c, key
}

func TestFetchStoresEntry(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	state, ok := c.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, []uint{1}, ids(state.Result))
	assert.False(t, state.Stale)
	assert.Zero(t, state.Pending)
}

func TestLoadUsesCacheUntilInvalidated(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	_, err := c.Load(t.Context(), key)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "ListReviews", 1)

	c.Invalidate()
	_, ok := c.Snapshot(key)
	assert.False(t, ok)

	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 2)), nil).Once()
	result, err := c.Load(t.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, ids(*result))
}

func TestFetchFailureKeepsPreviousEntry(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(nil, models.NewUnavailableError("down", nil)).Once()
	_, err := c.Fetch(t.Context(), key)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	state, ok := c.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, []uint{1}, ids(state.Result))
}

func TestFetchLastIssuedWins(t *testing.T) {
	api := new(mockAPI)
	c := New(api, Options{PageSize: 10}, quietLogger())
	key := NewKey(models.ReviewFilter{}, 1)

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	api.On("ListReviews", mock.Anything, key.Filter, 1).
		Run(func(mock.Arguments) {
			close(firstStarted)
			<-releaseFirst
		}).
		Return(page(1, review(1, "old", "Ann", 3)), nil).Once()
	api.On("ListReviews", mock.Anything, key.Filter, 1).
		Return(page(1, review(2, "new", "Ann", 3)), nil).Once()

	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Fetch(context.Background(), key)
	}()

	<-firstStarted
	second, err := c.Fetch(t.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids(*second))

	close(releaseFirst)
	wg.Wait()

	assert.ErrorIs(t, firstErr, ErrSuperseded)
	state, _ := c.Snapshot(key)
	assert.Equal(t, []uint{2}, ids(state.Result))
}

func TestFetchDuringInvalidationIsNotStored(t *testing.T) {
	api := new(mockAPI)
	c := New(api, Options{PageSize: 10}, quietLogger())
	key := NewKey(models.ReviewFilter{}, 1)

	api.On("ListReviews", mock.Anything, key.Filter, 1).
		Run(func(mock.Arguments) { c.Invalidate() }).
		Return(page(1, review(1, "a", "Ann", 3)), nil).Once()

	result, err := c.Fetch(t.Context(), key)
	require.NoError(t, err)
	assert.Len(t, result.Reviews, 1)

	_, ok := c.Snapshot(key)
	assert.False(t, ok)
}

func TestCreateSpeculativeThenReconciled(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))
	draft := newDraft(t, "fresh", "Cat", 5)

	api.On("CreateReview", mock.Anything, draft.Input()).
		Run(func(mock.Arguments) {
			state, ok := c.Snapshot(key)
			require.True(t, ok)
			assert.Equal(t, 1, state.Pending)
			require.Len(t, state.Result.Reviews, 2)
			speculative := state.Result.Reviews[1]
			assert.Zero(t, speculative.ID)
			assert.True(t, speculative.CreatedAt.IsZero())
			assert.Equal(t, "fresh", speculative.Title)
		}).
		Return(&models.Review{ID: 2, Title: "fresh", Content: "c", Author: "Cat", Rating: 5}, nil).Once()

	created, err := c.Create(t.Context(), draft)
	require.NoError(t, err)
	assert.Equal(t, uint(2), created.ID)

	_, ok := c.Snapshot(key)
	assert.False(t, ok, "a confirmed create invalidates every entry")
	api.AssertExpectations(t)
}

func TestCreateFailureRemovesOnlySpeculativeRow(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4)))
	draft := newDraft(t, "fresh", "Cat", 5)

	api.On("CreateReview", mock.Anything, draft.Input()).Return(nil, models.NewUnavailableError("down", nil)).Once()

	_, err := c.Create(t.Context(), draft)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	state, ok := c.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, []uint{1, 2}, ids(state.Result))
	assert.Zero(t, state.Pending)
	assert.False(t, state.Stale)
}

func TestCreateSkipsPagesWhereItWouldNotLand(t *testing.T) {
	api := new(mockAPI)
	c := New(api, Options{PageSize: 2}, quietLogger())

	full := NewKey(models.ReviewFilter{}, 1)
	api.On("ListReviews", mock.Anything, full.Filter, 1).Return(page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4)), nil).Once()
	notLast := NewKey(models.ReviewFilter{Author: "Ann"}, 1)
	api.On("ListReviews", mock.Anything, notLast.Filter, 1).Return(page(3, review(1, "a", "Ann", 3)), nil).Once()
	otherAuthor := NewKey(models.ReviewFilter{Author: "Bob"}, 1)
	api.On("ListReviews", mock.Anything, otherAuthor.Filter, 1).Return(page(1, review(2, "b", "Bob", 4)), nil).Once()
	lastWithRoom := NewKey(models.ReviewFilter{Rating: 5}, 1)
	api.On("ListReviews", mock.Anything, lastWithRoom.Filter, 1).Return(page(0), nil).Once()

	for _, k := range []Key{full, notLast, otherAuthor, lastWithRoom} {
		_, err := c.Fetch(t.Context(), k)
		require.NoError(t, err)
	}

	draft := newDraft(t, "fresh", "Ann", 5)
	api.On("CreateReview", mock.Anything, draft.Input()).
		Run(func(mock.Arguments) {
			for k, want := range map[Key]int{full: 2, notLast: 1, otherAuthor: 1, lastWithRoom: 1} {
				state, _ := c.Snapshot(k)
				assert.Len(t, state.Result.Reviews, want, "key %+v", k)
			}
		}).
		Return(nil, errors.New("boom")).Once()

	_, err := c.Create(t.Context(), draft)
	assert.Error(t, err)

	state, _ := c.Snapshot(lastWithRoom)
	assert.Empty(t, state.Result.Reviews)
}

func TestCreateRejectsUnvalidatedDraft(t *testing.T) {
	c := New(new(mockAPI), Options{}, quietLogger())
	_, err := c.Create(t.Context(), validation.Draft{})
	assert.True(t, errors.Is(err, models.ErrValidationFailed))
}

func TestUpdateSpeculativeThenReconciled(t *testing.T) {
	api := new(mockAPI)
	original := review(1, "a", "Ann", 3)
	c, key := seeded(t, api, 10, page(1, original))
	draft := newDraft(t, "edited", "Ann", 4)

	api.On("UpdateReview", mock.Anything, uint(1), draft.Input()).
		Run(func(mock.Arguments) {
			state, _ := c.Snapshot(key)
			got := state.Result.Reviews[0]
			assert.Equal(t, "edited", got.Title)
			assert.Equal(t, 4, got.Rating)
			assert.Equal(t, original.CreatedAt, got.CreatedAt, "createdAt is immutable")
			assert.Equal(t, uint(1), got.ID)
		}).
		Return(&models.Review{ID: 1, Title: "edited", Content: "c", Author: "Ann", Rating: 4}, nil).Once()

	updated, err := c.Update(t.Context(), 1, draft)
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Title)
}

func TestUpdateFailureRestoresPreviousRow(t *testing.T) {
	api := new(mockAPI)
	original := review(1, "a", "Ann", 3)
	c, key := seeded(t, api, 10, page(1, original))
	draft := newDraft(t, "edited", "Ann", 4)

	api.On("UpdateReview", mock.Anything, uint(1), draft.Input()).Return(nil, models.NewUnavailableError("down", nil)).Once()

	_, err := c.Update(t.Context(), 1, draft)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	state, _ := c.Snapshot(key)
	assert.Equal(t, original, state.Result.Reviews[0])
}

func TestUpdateUncachedIDIsStaleWithoutRequest(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	_, err := c.Update(t.Context(), 99, newDraft(t, "x", "Ann", 2))

	assert.True(t, errors.Is(err, models.ErrStaleReference))
	api.AssertNotCalled(t, "UpdateReview", mock.Anything, mock.Anything, mock.Anything)
	_, ok := c.Snapshot(key)
	assert.False(t, ok, "stale reference forces a refetch")
}

func TestUpdateServerNotFoundIsStaleReference(t *testing.T) {
	api := new(mockAPI)
	original := review(1, "a", "Ann", 3)
	c, key := seeded(t, api, 10, page(1, original))

	api.On("UpdateReview", mock.Anything, uint(1), mock.Anything).Return(nil, models.NewNotFoundError("Review not found", nil)).Once()

	_, err := c.Update(t.Context(), 1, newDraft(t, "x", "Ann", 2))

	assert.True(t, errors.Is(err, models.ErrStaleReference))
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, ok := c.Snapshot(key)
	assert.False(t, ok)
}

func TestUpdateTimeoutRollsBack(t *testing.T) {
	api := new(mockAPI)
	original := review(1, "a", "Ann", 3)
	c := New(api, Options{PageSize: 10, Timeout: 20 * time.Millisecond}, quietLogger())
	key := NewKey(models.ReviewFilter{}, 1)
	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(page(1, original), nil).Once()
	_, err := c.Fetch(t.Context(), key)
	require.NoError(t, err)

	api.On("UpdateReview", mock.Anything, uint(1), mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	_, err = c.Update(t.Context(), 1, newDraft(t, "x", "Ann", 2))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	state, _ := c.Snapshot(key)
	assert.Equal(t, original, state.Result.Reviews[0])
}

func TestDeleteSpeculativeThenConfirmed(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4)))

	api.On("DeleteReview", mock.Anything, uint(1)).
		Run(func(mock.Arguments) {
			state, _ := c.Snapshot(key)
			assert.Equal(t, []uint{2}, ids(state.Result))
		}).
		Return(nil).Once()

	require.NoError(t, c.Delete(t.Context(), 1))
	_, ok := c.Snapshot(key)
	assert.False(t, ok)
}

func TestDeleteFailureReinsertsAtOriginalPosition(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4), review(3, "c", "Ann", 5)))

	api.On("DeleteReview", mock.Anything, uint(2)).Return(models.NewUnavailableError("down", nil)).Once()

	err := c.Delete(t.Context(), 2)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	state, _ := c.Snapshot(key)
	assert.Equal(t, []uint{1, 2, 3}, ids(state.Result))
}

func TestDeleteUncachedStillSent(t *testing.T) {
	api := new(mockAPI)
	c, _ := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	api.On("DeleteReview", mock.Anything, uint(42)).Return(models.NewNotFoundError("Review not found", nil)).Once()

	err := c.Delete(t.Context(), 42)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.False(t, errors.Is(err, models.ErrStaleReference))
	api.AssertExpectations(t)
}

func TestDeleteCachedServerNotFoundIsStale(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	api.On("DeleteReview", mock.Anything, uint(1)).Return(models.NewNotFoundError("Review not found", nil)).Once()

	err := c.Delete(t.Context(), 1)
	assert.True(t, errors.Is(err, models.ErrStaleReference))
	_, ok := c.Snapshot(key)
	assert.False(t, ok)
}

func TestSameIDMutationsAreSerialised(t *testing.T) {
	api := new(mockAPI)
	c, _ := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))
	draft := newDraft(t, "first", "Ann", 3)

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var inFlight, maxInFlight int
	var mu sync.Mutex

	track := func(block bool) func(mock.Arguments) {
		return func(mock.Arguments) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			if block {
				close(firstStarted)
				<-releaseFirst
			}
			mu.Lock()
			inFlight--
			mu.Unlock()
		}
	}

	api.On("UpdateReview", mock.Anything, uint(1), mock.Anything).Run(track(true)).
		Return(&models.Review{ID: 1, Title: "first", Content: "c", Author: "Ann", Rating: 3}, nil).Once()
	api.On("DeleteReview", mock.Anything, uint(1)).Run(track(false)).Return(nil).Once()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = c.Update(context.Background(), 1, draft)
	}()
	<-firstStarted
	go func() {
		defer wg.Done()
		_ = c.Delete(context.Background(), 1)
	}()

	assert.Eventually(t, func() bool { return c.ids.held(1) == 2 }, time.Second, time.Millisecond)
	close(releaseFirst)
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
	assert.Zero(t, c.ids.held(1))
}

func TestDistinctIDsProceedConcurrently(t *testing.T) {
	api := new(mockAPI)
	c, _ := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4)))

	var started sync.WaitGroup
	started.Add(2)
	barrier := func(mock.Arguments) {
		started.Done()
		started.Wait()
	}
	api.On("DeleteReview", mock.Anything, uint(1)).Run(barrier).Return(nil).Once()
	api.On("DeleteReview", mock.Anything, uint(2)).Run(barrier).Return(nil).Once()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, id := range []uint{1, 2} {
			wg.Add(1)
			go func(id uint) {
				defer wg.Done()
				assert.NoError(t, c.Delete(context.Background(), id))
			}(id)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deletes of distinct ids blocked each other")
	}
}

func TestFetchWhilePendingIsNotApplied(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4)))

	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(page(1, review(1, "a", "Ann", 3), review(2, "b", "Bob", 4)), nil).Once()
	api.On("DeleteReview", mock.Anything, uint(1)).
		Run(func(mock.Arguments) {
			result, err := c.Fetch(context.Background(), key)
			require.NoError(t, err)
			assert.Len(t, result.Reviews, 2, "the fetched result is returned")

			state, _ := c.Snapshot(key)
			assert.Equal(t, []uint{2}, ids(state.Result), "but not applied over the pending delete")
			assert.True(t, state.Stale)
		}).
		Return(models.NewUnavailableError("down", nil)).Once()

	_ = c.Delete(t.Context(), 1)

	_, ok := c.Snapshot(key)
	assert.False(t, ok, "stale entry is dropped once its mutations settle")
}

func TestInvalidateMarksBusyEntriesStale(t *testing.T) {
	api := new(mockAPI)
	c, key := seeded(t, api, 10, page(1, review(1, "a", "Ann", 3)))

	api.On("UpdateReview", mock.Anything, uint(1), mock.Anything).
		Run(func(mock.Arguments) {
			c.Invalidate()
			state, ok := c.Snapshot(key)
			require.True(t, ok)
			assert.True(t, state.Stale)
			assert.Equal(t, 1, state.Pending)
		}).
		Return(nil, models.NewUnavailableError("down", nil)).Once()

	_, err := c.Update(t.Context(), 1, newDraft(t, "x", "Ann", 2))
	assert.Error(t, err)

	_, ok := c.Snapshot(key)
	assert.False(t, ok)
}

func TestNewKeyNormalisesPage(t *testing.T) {
	assert.Equal(t, 1, NewKey(models.ReviewFilter{}, 0).Page)
	assert.Equal(t, 1, NewKey(models.ReviewFilter{}, -4).Page)
	assert.Equal(t, 3, NewKey(models.ReviewFilter{}, 3).Page)
}

func TestCreateLandsOnlyOnLastPage(t *testing.T) {
	api := new(mockAPI)
	c := New(api, Options{PageSize: 10}, quietLogger())

	first := NewKey(models.ReviewFilter{}, 1)
	beyond := NewKey(models.ReviewFilter{}, 3)
	api.On("ListReviews", mock.Anything, first.Filter, 1).Return(page(1, review(1, "a", "Ann", 3)), nil).Once()
	api.On("ListReviews", mock.Anything, beyond.Filter, 3).Return(page(1), nil).Once()
	for _, k := range []Key{first, beyond} {
		_, err := c.Fetch(t.Context(), k)
		require.NoError(t, err)
	}

	draft := newDraft(t, "fresh", "Cat", 5)
	api.On("CreateReview", mock.Anything, draft.Input()).
		Run(func(mock.Arguments) {
			state, _ := c.Snapshot(first)
			assert.Len(t, state.Result.Reviews, 2)
			state, _ = c.Snapshot(beyond)
			assert.Empty(t, state.Result.Reviews, "a page past the end never shows the draft")
			assert.Zero(t, state.Pending)
		}).
		Return(nil, errors.New("boom")).Once()

	_, err := c.Create(t.Context(), draft)
	assert.Error(t, err)
	api.AssertExpectations(t)
}

func TestFetchForgetsSequenceOnceSettled(t *testing.T) {
	api := new(mockAPI)
	c := New(api, Options{PageSize: 10}, quietLogger())

	for p := 1; p <= 5; p++ {
		key := NewKey(models.ReviewFilter{}, p)
		api.On("ListReviews", mock.Anything, key.Filter, p).Return(page(5), nil).Once()
		_, err := c.Fetch(t.Context(), key)
		require.NoError(t, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.seq)
}

func TestSupersededFetchStaysSupersededAfterLaterFetchSettles(t *testing.T) {
	api := new(mockAPI)
	c := New(api, Options{PageSize: 10}, quietLogger())
	key := NewKey(models.ReviewFilter{}, 1)

	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	api.On("ListReviews", mock.Anything, key.Filter, 1).
		Run(func(mock.Arguments) {
			close(slowStarted)
			<-releaseSlow
		}).
		Return(page(1, review(1, "old", "Ann", 3)), nil).Once()
	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(page(1, review(2, "mid", "Ann", 3)), nil).Once()
	api.On("ListReviews", mock.Anything, key.Filter, 1).Return(page(1, review(3, "new", "Ann", 3)), nil).Once()

	var slowErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, slowErr = c.Fetch(context.Background(), key)
	}()
	<-slowStarted

	_, err := c.Fetch(t.Context(), key)
	require.NoError(t, err)
	_, err = c.Fetch(t.Context(), key)
	require.NoError(t, err)

	close(releaseSlow)
	<-done

	assert.ErrorIs(t, slowErr, ErrSuperseded)
	state, _ := c.Snapshot(key)
	assert.Equal(t, []uint{3}, ids(state.Result))
}
