package chain

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/ir"
	"github.com/roach88/sourcechain/internal/testutil"
)

// newTestChain builds a chain over a fresh memory store with a
// deterministic clock.
func newTestChain(t *testing.T, opts ...Option) *SourceChain {
	t.Helper()
	store := cas.Start(cas.NewMemoryBackend())
	t.Cleanup(store.Stop)

	head, err := NewHeadActor(context.Background(), nil, "test")
	require.NoError(t, err)
	t.Cleanup(head.Stop)

	clock := testutil.NewDeterministicClock()
	return New(store, head, append([]Option{WithClock(clock.Now)}, opts...)...)
}

func mustCommit(t *testing.T, c *SourceChain, entryType, content string) ir.ChainHeader {
	t.Helper()
	h, err := c.Commit(context.Background(), ir.NewEntry(entryType, content))
	require.NoError(t, err)
	return h
}

func TestEmptyChain(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	_, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.TopHeaderOfType(ctx, "A")
	require.NoError(t, err)
	assert.False(t, found)

	headers, err := c.Headers(ctx)
	require.NoError(t, err)
	assert.Empty(t, headers)

	it, err := c.Iter(ctx)
	require.NoError(t, err)
	_, ok := it.Next()
	assert.False(t, ok)
	assert.NoError(t, it.Err())
}

func TestTwoEmptyChainsAreEqual(t *testing.T) {
	ctx := context.Background()
	a := newTestChain(t)
	b := newTestChain(t)

	eq, err := a.Equal(ctx, b)
	require.NoError(t, err)
	assert.True(t, eq)

	mustCommit(t, a, "A", "only in a")

	eq, err = a.Equal(ctx, b)
	require.NoError(t, err)
	assert.False(t, eq, "chains diverge after one-sided push")

	eq, err = b.Equal(ctx, a)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestChainsWithSameHistoryAreEqual(t *testing.T) {
	ctx := context.Background()
	a := newTestChain(t)
	b := newTestChain(t)

	for _, c := range []*SourceChain{a, b} {
		mustCommit(t, c, "A", "one")
		mustCommit(t, c, "B", "two")
	}

	eq, err := a.Equal(ctx, b)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestPushLinksHeaders(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	first := mustCommit(t, c, "A", "first")
	assert.Nil(t, first.Link, "genesis has no previous header")
	assert.Nil(t, first.LinkSameType)

	second := mustCommit(t, c, "A", "second")
	require.NotNil(t, second.Link)
	assert.Equal(t, first.MustAddress(), *second.Link)
	require.NotNil(t, second.LinkSameType)
	assert.Equal(t, first.MustAddress(), *second.LinkSameType)

	top, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, second.Equal(top))
}

func TestTopHeaderOfTypeABA(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	firstA := mustCommit(t, c, "A", "first A")
	b := mustCommit(t, c, "B", "only B")
	secondA := mustCommit(t, c, "A", "second A")

	gotA, found, err := c.TopHeaderOfType(ctx, "A")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, secondA.Equal(gotA))

	gotB, found, err := c.TopHeaderOfType(ctx, "B")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, b.Equal(gotB))

	_, found, err = c.TopHeaderOfType(ctx, "C")
	require.NoError(t, err)
	assert.False(t, found)

	// Content addressing is independent of chain position.
	e, found, err := c.Entry(ctx, firstA.EntryAddress)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.NewEntry("A", "first A"), e)

	require.NotNil(t, secondA.LinkSameType)
	assert.Equal(t, firstA.MustAddress(), *secondA.LinkSameType)
	assert.Nil(t, b.LinkSameType)
}

func TestPushOfOtherTypeDoesNotChangeTopOfType(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	a := mustCommit(t, c, "A", "a")
	before, _, err := c.TopHeaderOfType(ctx, "A")
	require.NoError(t, err)

	mustCommit(t, c, "B", "b")
	mustCommit(t, c, "C", "c")

	after, found, err := c.TopHeaderOfType(ctx, "A")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, before.Equal(after))
	assert.True(t, a.Equal(after))
}

func TestIterationReversePushOrder(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	var pushed []ir.ChainHeader
	for i := 0; i < 5; i++ {
		pushed = append(pushed, mustCommit(t, c, fmt.Sprintf("T%d", i%2), fmt.Sprintf("entry %d", i)))
	}

	it, err := c.Iter(ctx)
	require.NoError(t, err)

	var got []ir.ChainHeader
	for h := range it.All() {
		got = append(got, h)
	}
	require.NoError(t, it.Err())
	require.Len(t, got, len(pushed))
	for i := range pushed {
		assert.True(t, pushed[len(pushed)-1-i].Equal(got[i]), "position %d", i)
	}

	// A new iterator starts again from the head; the old one stays spent.
	_, ok := it.Next()
	assert.False(t, ok)
	again, err := c.Iter(ctx)
	require.NoError(t, err)
	first, ok := again.Next()
	require.True(t, ok)
	assert.True(t, pushed[len(pushed)-1].Equal(first))
}

func TestIteratorEarlyBreak(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	for i := 0; i < 3; i++ {
		mustCommit(t, c, "A", fmt.Sprintf("%d", i))
	}

	it, err := c.Iter(ctx)
	require.NoError(t, err)
	n := 0
	for range it.All() {
		n++
		break
	}
	assert.Equal(t, 1, n)

	// Remaining headers are still available.
	rest := 0
	for range it.All() {
		rest++
	}
	assert.Equal(t, 2, rest)
}

func TestEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	entry := ir.NewEntry("testEntryType", "test entry content")
	h, err := c.Commit(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, ir.Address("cae3958863d91b2c50a4e3ffe71aecfb4763ea6e3f403ef85ba60f54a061a76c"), h.EntryAddress)

	got, found, err := c.Entry(ctx, h.EntryAddress)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry, got)

	_, found, err = c.Entry(ctx, ir.Address("missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntryLookupIgnoresChainMembership(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	e := ir.NewEntry("loose", "never pushed")
	data, err := e.Canonical()
	require.NoError(t, err)
	addr, err := c.Store().Put(ctx, data)
	require.NoError(t, err)

	got, found, err := c.Entry(ctx, addr)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, e, got)
}

func TestHeaderLookup(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	h := mustCommit(t, c, "A", "x")

	got, found, err := c.Header(ctx, h.MustAddress())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, h.Equal(got))

	_, _, err = c.Header(ctx, h.EntryAddress)
	assert.Error(t, err, "entry bytes are not a header")
}

func TestCloneSharesHistory(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	clone := c.Clone()

	h := mustCommit(t, c, "A", "pushed on original")

	top, found, err := clone.TopHeader(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, h.Equal(top))

	eq, err := c.Equal(ctx, clone)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestPushEntryRejectsTypeMismatch(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	entry := ir.NewEntry("A", "content")
	draft, err := c.NewDraft(entry)
	require.NoError(t, err)
	draft.EntryType = "B"

	_, err = c.PushEntry(ctx, draft, entry)
	assert.ErrorIs(t, err, ErrEntryTypeMismatch)

	_, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	assert.False(t, found, "rejected push leaves the head untouched")
}

func TestPushEntryRejectsAddressMismatch(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	draft, err := c.NewDraft(ir.NewEntry("A", "one"))
	require.NoError(t, err)

	_, err = c.PushEntry(ctx, draft, ir.NewEntry("A", "two"))
	assert.ErrorIs(t, err, ErrEntryAddressMismatch)
}

func TestPushEntryRejectsInvalidEntry(t *testing.T) {
	c := newTestChain(t)
	_, err := c.Commit(context.Background(), ir.NewEntry("", "no type"))
	assert.ErrorIs(t, err, ir.ErrEmptyEntryType)
}

func TestPushEntryRejectsInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	for _, content := range []string{"\xff", "\xfe"} {
		_, err := c.Commit(ctx, ir.Entry{EntryType: "bin", Content: content})
		assert.ErrorIs(t, err, ir.ErrInvalidUTF8)
	}
	_, err := c.Commit(ctx, ir.Entry{EntryType: "\xff", Content: "x"})
	assert.ErrorIs(t, err, ir.ErrInvalidUTF8)

	_, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPushEntryRejectsUnnormalizedType(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	_, err := c.Commit(ctx, ir.Entry{EntryType: "e\u0301", Content: "x"})
	assert.ErrorIs(t, err, ir.ErrEntryTypeNotNFC)

	entry := ir.NewEntry("\u00e9", "x")
	draft, err := c.NewDraft(entry)
	require.NoError(t, err)
	draft.EntryType = "e\u0301"
	_, err = c.PushEntry(ctx, draft, entry)
	assert.ErrorIs(t, err, ir.ErrEntryTypeNotNFC)

	_, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPushedValuesRoundTripUnchanged(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	entry := ir.NewEntry("e\u0301", "cafe\u0301 \u2028 <b>")
	pushed, err := c.Commit(ctx, entry)
	require.NoError(t, err)

	top, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, pushed, top)

	ofType, found, err := c.TopHeaderOfType(ctx, pushed.EntryType)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, pushed, ofType)

	got, found, err := c.Entry(ctx, pushed.EntryAddress)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry, got)

	other := mustCommit(t, c, entry.EntryType, "caf\u00e9 \u2028 <b>")
	assert.NotEqual(t, pushed.EntryAddress, other.EntryAddress)
}

func TestNewDraftTimestamp(t *testing.T) {
	c := newTestChain(t)

	d1, err := c.NewDraft(ir.NewEntry("A", "x"))
	require.NoError(t, err)
	d2, err := c.NewDraft(ir.NewEntry("A", "x"))
	require.NoError(t, err)

	assert.Equal(t, "2018-10-11T03:23:38Z", d1.Timestamp)
	assert.Equal(t, "2018-10-11T03:23:39Z", d2.Timestamp)
	assert.Empty(t, d1.Signature, "no signer configured")
}

func TestSequentialPushStress(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	const pushes = 100
	var last ir.ChainHeader
	for i := 0; i < pushes; i++ {
		last = mustCommit(t, c, fmt.Sprintf("type-%d", i%3), fmt.Sprintf("content %d", i))
	}

	top, found, err := c.TopHeader(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, last.Equal(top))

	headers, err := c.Headers(ctx)
	require.NoError(t, err)
	assert.Len(t, headers, pushes)

	// Each push stores one entry and one header.
	n, err := c.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*pushes, n)

	require.NoError(t, c.Verify(ctx))
}

func TestConcurrentPushersDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handle := c.Clone()
			for i := 0; i < perWorker; i++ {
				_, err := handle.Commit(ctx, ir.NewEntry("T", fmt.Sprintf("w%d-%d", w, i)))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	headers, err := c.Headers(ctx)
	require.NoError(t, err)
	assert.Len(t, headers, workers*perWorker)
	require.NoError(t, c.Verify(ctx))
}

func TestIteratorPanicsOnMissingLink(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	// A header whose predecessor was never stored.
	orphan := ir.ChainHeader{
		EntryType:    "A",
		Link:         ir.Address("lost").Ptr(),
		EntryAddress: ir.NewEntry("A", "x").MustAddress(),
	}
	data, err := orphan.Canonical()
	require.NoError(t, err)
	addr, err := c.Store().Put(ctx, data)
	require.NoError(t, err)
	_, err = c.Head().Set(ctx, addr.Ptr())
	require.NoError(t, err)

	it, err := c.Iter(ctx)
	require.NoError(t, err)
	_, ok := it.Next()
	require.True(t, ok)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		it.Next()
	}()
	require.NotNil(t, recovered)
	err, isErr := recovered.(error)
	require.True(t, isErr)
	assert.True(t, IsConsistencyError(err))

	// Non-panicking paths report the same condition as an error.
	_, err = c.Headers(ctx)
	assert.True(t, IsConsistencyError(err))
	_, err = c.Commit(ctx, ir.NewEntry("B", "y"))
	assert.True(t, IsConsistencyError(err), "push walks the chain to find the previous same-type header")
}

func TestIteratorReportsStoreErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	mustCommit(t, c, "A", "x")

	it, err := c.Iter(ctx)
	require.NoError(t, err)
	c.Store().Stop()

	_, ok := it.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, it.Err(), cas.ErrStoreUnavailable)
}

func TestPushPropagatesStoreUnavailable(t *testing.T) {
	c := newTestChain(t)
	c.Store().Stop()

	_, err := c.Commit(context.Background(), ir.NewEntry("A", "x"))
	assert.ErrorIs(t, err, cas.ErrStoreUnavailable)
}
