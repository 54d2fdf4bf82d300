package borrows

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/books"
	"library-backend/internal/platform/config"
	"library-backend/internal/platform/ids"
)

var (
	testIDs   = ids.NewULIDGen()
	testStart = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
)

func newTestLedger(repo Repository) *Ledger {
	l := NewLedger(repo, testIDs, config.LedgerConfig{MaxAttempts: 10, BaseDelay: time.Millisecond})
	l.clock = &tickClock{t: testStart}
	return l
}

func seedBook(repo *memRepo, total, available int) string {
	id := testIDs.New(testStart)
	repo.putBook(books.Book{
		ID:              id,
		Title:           "The Left Hand of Darkness",
		Author:          "Ursula K. Le Guin",
		TotalCopies:     total,
		AvailableCopies: available,
		CreatedAt:       testStart,
		UpdatedAt:       testStart,
	})
	return id
}

func newUser() string { return testIDs.New(testStart) }

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	require.ErrorAs(t, err, &api)
	return api.Code
}

func TestLedger_Scenario(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	ctx := context.Background()
	bookID := seedBook(repo, 2, 2)
	u1, u2, u3 := newUser(), newUser(), newUser()

	first, err := l.BorrowCopy(ctx, u1, bookID)
	require.NoError(t, err)
	assert.Equal(t, StatusBorrowed, first.Status)
	assert.Nil(t, first.ReturnDate)
	assert.Equal(t, 1, repo.book(bookID).AvailableCopies)

	_, err = l.BorrowCopy(ctx, u1, bookID)
	assert.Equal(t, CodeDuplicateActiveBorrow, codeOf(t, err))
	assert.Equal(t, 1, repo.book(bookID).AvailableCopies)

	_, err = l.BorrowCopy(ctx, u2, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.book(bookID).AvailableCopies)

	_, err = l.BorrowCopy(ctx, u3, bookID)
	assert.Equal(t, CodeNoCopiesAvailable, codeOf(t, err))

	returned, err := l.ReturnCopy(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.ReturnDate.After(returned.BorrowDate))
	assert.Equal(t, 1, repo.book(bookID).AvailableCopies)
	assert.Equal(t, 2, repo.book(bookID).TotalCopies)
}

func TestLedger_BorrowUnknownBook(t *testing.T) {
	l := newTestLedger(newMemRepo())
	_, err := l.BorrowCopy(context.Background(), newUser(), testIDs.New(testStart))
	assert.Equal(t, CodeNotFound, codeOf(t, err))
}

func TestLedger_DuplicateCheckedBeforeAvailability(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 1, 1)
	u := newUser()

	_, err := l.BorrowCopy(context.Background(), u, bookID)
	require.NoError(t, err)
	_, err = l.BorrowCopy(context.Background(), u, bookID)
	assert.Equal(t, CodeDuplicateActiveBorrow, codeOf(t, err))
}

func TestLedger_ReturnUnknown(t *testing.T) {
	l := newTestLedger(newMemRepo())
	_, err := l.ReturnCopy(context.Background(), testIDs.New(testStart))
	assert.Equal(t, CodeNotFound, codeOf(t, err))
}

func TestLedger_ReturnTwice(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	ctx := context.Background()
	bookID := seedBook(repo, 3, 3)

	b, err := l.BorrowCopy(ctx, newUser(), bookID)
	require.NoError(t, err)
	_, err = l.BorrowCopy(ctx, newUser(), bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.book(bookID).AvailableCopies)

	_, err = l.ReturnCopy(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.book(bookID).AvailableCopies)

	_, err = l.ReturnCopy(ctx, b.ID)
	assert.Equal(t, CodeAlreadyReturned, codeOf(t, err))
	assert.Equal(t, 2, repo.book(bookID).AvailableCopies)
}

func TestLedger_RoundTripRestoresCount(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	ctx := context.Background()
	bookID := seedBook(repo, 4, 3)
	before := repo.book(bookID).AvailableCopies

	b, err := l.BorrowCopy(ctx, newUser(), bookID)
	require.NoError(t, err)
	_, err = l.ReturnCopy(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, before, repo.book(bookID).AvailableCopies)
}

func TestLedger_ReturnAfterBookDeleted(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	ctx := context.Background()
	bookID := seedBook(repo, 1, 1)

	b, err := l.BorrowCopy(ctx, newUser(), bookID)
	require.NoError(t, err)

	repo.mu.Lock()
	delete(repo.books, bookID)
	repo.mu.Unlock()

	got, err := l.ReturnCopy(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, got.Status)
}

func TestLedger_ReturnCapsAtTotal(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	ctx := context.Background()
	bookID := seedBook(repo, 2, 2)

	b, err := l.BorrowCopy(ctx, newUser(), bookID)
	require.NoError(t, err)

	// an admin raised the counter back to total while the copy was out
	bk := repo.book(bookID)
	bk.AvailableCopies = bk.TotalCopies
	bk.Version++
	repo.putBook(bk)

	_, err = l.ReturnCopy(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.book(bookID).AvailableCopies)
}

func TestLedger_ParallelBorrowsOfLastCopy(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 1, 1)

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			<-start
			_, err := l.BorrowCopy(context.Background(), user, bookID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			var api *APIError
			if errors.As(err, &api) && (api.Code == CodeNoCopiesAvailable || api.Code == CodeDuplicateActiveBorrow) {
				rejected++
			}
		}(newUser())
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, 0, repo.book(bookID).AvailableCopies)
}

func TestLedger_ParallelBorrowsSameUser(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 5, 5)
	user := newUser()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.BorrowCopy(context.Background(), user, bookID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, CodeDuplicateActiveBorrow, codeOf(t, err))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, repo.activeCount(user, bookID))
	assert.Equal(t, 4, repo.book(bookID).AvailableCopies)
}

func TestLedger_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			repo := newMemRepo()
			l := newTestLedger(repo)
			ctx := context.Background()
			total := 1 + rng.Intn(3)
			bookID := seedBook(repo, total, total)
			users := []string{newUser(), newUser(), newUser(), newUser()}
			var open []string

			for step := 0; step < 60; step++ {
				if len(open) > 0 && rng.Intn(2) == 0 {
					i := rng.Intn(len(open))
					_, err := l.ReturnCopy(ctx, open[i])
					require.NoError(t, err)
					open = append(open[:i], open[i+1:]...)
				} else {
					b, err := l.BorrowCopy(ctx, users[rng.Intn(len(users))], bookID)
					if err == nil {
						open = append(open, b.ID)
					} else {
						c := codeOf(t, err)
						assert.Contains(t, []Code{CodeNoCopiesAvailable, CodeDuplicateActiveBorrow}, c)
					}
				}

				bk := repo.book(bookID)
				require.GreaterOrEqual(t, bk.AvailableCopies, 0)
				require.LessOrEqual(t, bk.AvailableCopies, bk.TotalCopies)
				require.Equal(t, total-len(open), bk.AvailableCopies)
				for _, u := range users {
					require.LessOrEqual(t, repo.activeCount(u, bookID), 1)
				}
			}
		})
	}
}

func TestLedger_RetriesConflicts(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 1, 1)
	repo.conflictCommits = 3

	_, err := l.BorrowCopy(context.Background(), newUser(), bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.commits)
	assert.Equal(t, 0, repo.book(bookID).AvailableCopies)
}

func TestLedger_ConflictsExhausted(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 1, 1)
	repo.conflictCommits = 1000

	_, err := l.BorrowCopy(context.Background(), newUser(), bookID)
	assert.Equal(t, CodeInternal, codeOf(t, err))
	assert.Equal(t, 1, repo.book(bookID).AvailableCopies)
}

func TestLedger_StorageFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    Code
		message string
	}{
		{"unreachable", mysql.ErrInvalidConn, CodeUnavailable, "database unavailable"},
		{"unexpected", errBoom, CodeInternal, "internal error"},
		{"caller gone", context.Canceled, CodeUnavailable, "request cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.txErr = tt.err
			l := newTestLedger(repo)

			_, err := l.BorrowCopy(context.Background(), newUser(), testIDs.New(testStart))
			assert.Equal(t, tt.code, codeOf(t, err))
			assert.Equal(t, tt.message, errorFromErr(err).Message)
		})
	}
}

func TestLedger_DeadlineLeavesStateUntouched(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 1, 1)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := l.BorrowCopy(ctx, newUser(), bookID)
	assert.Equal(t, CodeUnavailable, codeOf(t, err))
	assert.Equal(t, 1, repo.book(bookID).AvailableCopies)
}

func TestLedger_CancelledCallerLeavesStateUntouched(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(repo)
	bookID := seedBook(repo, 1, 1)
	userID := newUser()

	b, err := l.BorrowCopy(context.Background(), userID, bookID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.BorrowCopy(ctx, newUser(), bookID)
	assert.Equal(t, CodeUnavailable, codeOf(t, err))
	assert.Equal(t, "request cancelled", errorFromErr(err).Message)

	_, err = l.ReturnCopy(ctx, b.ID)
	assert.Equal(t, CodeUnavailable, codeOf(t, err))
	assert.Equal(t, 0, repo.book(bookID).AvailableCopies)
	assert.Equal(t, 1, repo.activeCount(userID, bookID))
}
