package enrollment

import (
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestLedgerToggleAddsAndRemoves(t *testing.T) {
	ledger := NewLedger()

	assert.Equal(t, Added, ledger.Toggle(Normal, 10))
	assert.True(t, ledger.Contains(Normal, 10))
	assert.Equal(t, 1, ledger.Total())
	assert.Equal(t, 7, ledger.Remaining())

	assert.Equal(t, Removed, ledger.Toggle(Normal, 10))
	assert.False(t, ledger.Contains(Normal, 10))
	assert.Equal(t, 0, ledger.Total())
}

func TestLedgerToggleTwiceRestoresState(t *testing.T) {
	ledger := NewLedger()
	ledger.Toggle(Normal, 1)
	ledger.Toggle(Advance, 20)
	before := ledger.Snapshot()

	require.Equal(t, Added, ledger.Toggle(Retake, 30))
	require.Equal(t, Removed, ledger.Toggle(Retake, 30))

	assert.Equal(t, before, ledger.Snapshot())
}

func TestLedgerRejectsBeyondCapacity(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))
	for _, id := range seq(1, 4) {
		ledger.Toggle(Normal, id)
	}
	for _, id := range seq(11, 12) {
		ledger.Toggle(Advance, id)
	}
	for _, id := range seq(21, 22) {
		ledger.Toggle(Retake, id)
	}
	require.Equal(t, 8, ledger.Total())
	require.True(t, ledger.IsMaxReached())
	before := ledger.Snapshot()

	assert.Equal(t, Rejected, ledger.Toggle(Advance, 13))

	assert.Equal(t, before, ledger.Snapshot())
	notices := log.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelWarning, notices[0].Level)
	assert.Equal(t, MaxReachedMessage(8), notices[0].Message)

	// Removal is always allowed at the cap.
	assert.Equal(t, Removed, ledger.Toggle(Normal, 1))
	assert.Equal(t, 1, ledger.Remaining())
}

func TestLedgerRejectsCrossCategoryDuplicate(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))
	ledger.Toggle(Normal, 5)

	assert.Equal(t, Rejected, ledger.Toggle(Retake, 5))
	assert.True(t, ledger.Contains(Normal, 5))
	assert.False(t, ledger.Contains(Retake, 5))
	last, ok := log.Last()
	require.True(t, ok)
	assert.Contains(t, last.Message, "already selected as NORMAL")
}

func TestLedgerCatalogGuardsCategory(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))
	ledger.SetCatalog(Normal, []int{1, 2})
	ledger.SetCatalog(Advance, []int{7})

	assert.Equal(t, Rejected, ledger.Toggle(Advance, 1))
	assert.Equal(t, 0, ledger.Total())
	last, _ := log.Last()
	assert.Equal(t, "subject 1 is offered as NORMAL, not ADELANTO", last.Message)

	assert.Equal(t, Added, ledger.Toggle(Advance, 7))
	// Categories without a catalog are not guarded.
	assert.Equal(t, Added, ledger.Toggle(Retake, 99))
}

func TestLedgerCatalogRejectsUnofferedID(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))
	ledger.SetCatalog(Normal, []int{1, 2})
	ledger.SetCatalog(Advance, []int{7})
	ledger.SetCatalog(Retake, nil)

	assert.Equal(t, Rejected, ledger.Toggle(Advance, 99))
	last, _ := log.Last()
	assert.Equal(t, "subject 99 is not offered as ADELANTO", last.Message)

	assert.Equal(t, Rejected, ledger.Toggle(Retake, 5))
	last, _ = log.Last()
	assert.Equal(t, "subject 5 is not offered as RECURSAMIENTO", last.Message)

	assert.Equal(t, 0, ledger.Total())
	assert.Equal(t, Selection{}, ledger.Snapshot())
}

func TestLedgerHeldRefusesMutations(t *testing.T) {
	ledger := NewLedger()
	ledger.Toggle(Normal, 1)

	sel, err := ledger.hold()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sel.Normal)

	_, err = ledger.hold()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	outcome, err := ledger.toggle(Normal, 2)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, Rejected, outcome)
	_, err = ledger.selectAllNormal()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, Rejected, ledger.Toggle(Normal, 1))

	ledger.release(false)
	assert.Equal(t, []int{1}, ledger.IDs(Normal))
	assert.Equal(t, Added, ledger.Toggle(Normal, 2))

	_, err = ledger.hold()
	require.NoError(t, err)
	ledger.release(true)
	assert.Equal(t, 0, ledger.Total())
	assert.Equal(t, Added, ledger.Toggle(Normal, 3))
}

func TestLedgerRejectsUnknownCategory(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))

	assert.Equal(t, Rejected, ledger.Toggle(Category("EXTRA"), 1))
	assert.Equal(t, 0, ledger.Total())
	last, _ := log.Last()
	assert.Equal(t, LevelError, last.Level)
}

func TestSelectAllNormalTruncatesToAvailable(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))
	visible := seq(101, 110)
	ledger.SetCatalog(Normal, visible)
	for _, id := range seq(1, 3) {
		ledger.Toggle(Advance, id)
	}
	for _, id := range seq(11, 13) {
		ledger.Toggle(Retake, id)
	}

	assert.Equal(t, Replaced, ledger.SelectAllNormal())

	assert.Equal(t, []int{101, 102}, ledger.IDs(Normal))
	assert.Equal(t, 8, ledger.Total())
	notices := log.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelWarning, notices[0].Level)
	assert.True(t, strings.Contains(notices[0].Message, "2 of 10"), notices[0].Message)
}

func TestSelectAllNormalTogglesOff(t *testing.T) {
	ledger := NewLedger()
	ledger.SetCatalog(Normal, []int{1, 2, 3})

	assert.Equal(t, Replaced, ledger.SelectAllNormal())
	assert.True(t, ledger.IsAllNormalSelected())
	assert.Equal(t, []int{1, 2, 3}, ledger.IDs(Normal))

	assert.Equal(t, Cleared, ledger.SelectAllNormal())
	assert.Empty(t, ledger.IDs(Normal))
	assert.False(t, ledger.IsAllNormalSelected())
}

func TestSelectAllNormalReplacesPartialSelection(t *testing.T) {
	ledger := NewLedger()
	ledger.SetCatalog(Normal, []int{1, 2, 3})
	ledger.Toggle(Normal, 3)

	assert.Equal(t, Replaced, ledger.SelectAllNormal())
	assert.Equal(t, []int{1, 2, 3}, ledger.IDs(Normal))
}

func TestSelectAllNormalRejectedWhenOthersFillCap(t *testing.T) {
	log := &NoticeLog{}
	ledger := NewLedger(WithNotifier(log))
	ledger.SetCatalog(Normal, []int{1, 2})
	for _, id := range seq(11, 18) {
		ledger.Toggle(Advance, id)
	}
	log.Drain()

	assert.Equal(t, Rejected, ledger.SelectAllNormal())
	assert.Empty(t, ledger.IDs(Normal))
	last, _ := log.Last()
	assert.Equal(t, MaxReachedMessage(8), last.Message)
}

func TestLedgerResetKeepsCatalog(t *testing.T) {
	ledger := NewLedger()
	ledger.SetCatalog(Normal, []int{1, 2})
	ledger.SelectAllNormal()
	ledger.Toggle(Retake, 9)

	ledger.Reset()

	assert.Equal(t, 0, ledger.Total())
	assert.Equal(t, Replaced, ledger.SelectAllNormal())
	assert.Equal(t, 2, ledger.Count(Normal))
}

func TestLedgerCapHoldsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ledger := NewLedger()
	ledger.SetCatalog(Normal, seq(1, 12))
	cats := []Category{Normal, Advance, Retake}

	for i := 0; i < 5000; i++ {
		if rng.Intn(10) == 0 {
			ledger.SelectAllNormal()
		} else {
			ledger.Toggle(cats[rng.Intn(len(cats))], rng.Intn(30)+1)
		}

		sel := ledger.Snapshot()
		require.LessOrEqual(t, sel.Total(), MaxSubjects)
		seen := map[int]bool{}
		for _, ids := range [][]int{sel.Normal, sel.Advance, sel.Retake} {
			for _, id := range ids {
				require.False(t, seen[id], "id %d selected in two categories", id)
				seen[id] = true
			}
		}
	}
}

func TestLedgerConcurrentTogglesRespectCap(t *testing.T) {
	ledger := NewLedger()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ledger.Toggle(Advance, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, MaxSubjects, ledger.Total())
}

func TestLedgerCustomMax(t *testing.T) {
	ledger := NewLedger(WithMax(2))
	ledger.Toggle(Normal, 1)
	ledger.Toggle(Normal, 2)

	assert.Equal(t, Rejected, ledger.Toggle(Normal, 3))
	assert.Equal(t, 2, ledger.Max())
}
