package source

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"ethereumSource/internal/chain"
	"ethereumSource/internal/chain/chaintest"
	"ethereumSource/internal/model"
)

// fakeFeeds runs every feed on one producer goroutine, like a node client's
// delivery loop.
type fakeFeeds struct {
	events chan func()
	end    chan error
	err    error

	blockFn func(*chain.Block)
	txFn    func(*chain.Transaction)
	from    chain.BlockParam
	to      chain.BlockParam
	opened  string
}

func newFakeFeeds() *fakeFeeds {
	return &fakeFeeds{
		events: make(chan func(), 64),
		end:    make(chan error, 1),
	}
}

func (f *fakeFeeds) subscription() event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case <-quit:
				return nil
			case err := <-f.end:
				return err
			case ev := <-f.events:
				ev()
			}
		}
	})
}

func (f *fakeFeeds) SubscribeBlocks(_ context.Context, fn func(*chain.Block)) (event.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened, f.blockFn = "blocks", fn
	return f.subscription(), nil
}

func (f *fakeFeeds) SubscribeTransactions(_ context.Context, fn func(*chain.Transaction)) (event.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened, f.txFn = "transactions", fn
	return f.subscription(), nil
}

func (f *fakeFeeds) SubscribePendingTransactions(_ context.Context, fn func(*chain.Transaction)) (event.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened, f.txFn = "pending", fn
	return f.subscription(), nil
}

func (f *fakeFeeds) ReplayTransactions(_ context.Context, from, to chain.BlockParam, fn func(*chain.Transaction)) (event.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened, f.txFn, f.from, f.to = "replay", fn, from, to
	return f.subscription(), nil
}

func (f *fakeFeeds) emitBlock(block *chain.Block) {
	f.events <- func() { f.blockFn(block) }
}

func (f *fakeFeeds) emitTx(tx *chain.Transaction) {
	f.events <- func() { f.txFn(tx) }
}

type recordSink struct {
	mu      sync.Mutex
	records []model.Record
	fail    func(model.Record) error
}

func (s *recordSink) handle(_ context.Context, record model.Record) error {
	if s.fail != nil {
		if err := s.fail(record); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *recordSink) waitFor(t *testing.T, n int) []model.Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.mu.Lock()
		if len(s.records) >= n {
			out := append([]model.Record(nil), s.records...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d records", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func activate(t *testing.T, filter Filter, feeds *fakeFeeds, out *recordSink) *Subscription {
	t.Helper()
	sub, err := Activate(context.Background(), filter, feeds, out.handle, nil)
	if err != nil {
		t.Fatalf("activate %s: %v", filter.Name(), err)
	}
	t.Cleanup(sub.Close)
	return sub
}

func TestActivateForwardsOneRecordPerEvent(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		opened string
		emit   func(*fakeFeeds)
		keys   []string
	}{
		{
			name:   "new block",
			filter: NewBlocks{},
			opened: "blocks",
			emit:   func(f *fakeFeeds) { f.emitBlock(chaintest.NewBlock(4, chaintest.NewTransaction(1))) },
			keys:   model.BlockKeys,
		},
		{
			name:   "new transaction",
			filter: NewTransactions{},
			opened: "transactions",
			emit: func(f *fakeFeeds) {
				tx := chaintest.NewTransaction(1)
				chaintest.NewBlock(4, tx)
				f.emitTx(tx)
			},
			keys: model.TransactionKeys,
		},
		{
			name:   "pending transaction",
			filter: PendingTransactions{},
			opened: "pending",
			emit:   func(f *fakeFeeds) { f.emitTx(chaintest.NewTransaction(1)) },
			keys:   model.PendingTransactionKeys,
		},
		{
			name:   "replay transaction",
			filter: ReplayTransactions{From: chain.EarliestBlock, To: chain.LatestBlock},
			opened: "replay",
			emit: func(f *fakeFeeds) {
				tx := chaintest.NewTransaction(1)
				chaintest.NewBlock(4, tx)
				f.emitTx(tx)
			},
			keys: model.TransactionKeys,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			feeds := newFakeFeeds()
			out := &recordSink{}
			sub := activate(t, tc.filter, feeds, out)
			if feeds.opened != tc.opened {
				t.Fatalf("expected %s feed, opened %s", tc.opened, feeds.opened)
			}

			tc.emit(feeds)
			records := out.waitFor(t, 1)
			waitUntil(t, "delivered counter", func() bool { return sub.Delivered() == 1 })
			time.Sleep(20 * time.Millisecond)
			if out.count() != 1 {
				t.Fatalf("expected exactly one record, got %d", out.count())
			}
			if !reflect.DeepEqual(recordKeys(records[0]), sortedCopy(tc.keys)) {
				t.Fatalf("keys mismatch: %v", recordKeys(records[0]))
			}
		})
	}
}

func TestPendingRecordIgnoresBlockPlacement(t *testing.T) {
	feeds := newFakeFeeds()
	out := &recordSink{}
	activate(t, PendingTransactions{}, feeds, out)

	tx := chaintest.NewTransaction(9)
	chaintest.NewBlock(77, tx)
	feeds.emitTx(tx)

	rec := out.waitFor(t, 1)[0]
	if _, ok := rec[model.KeyBlockHash]; ok {
		t.Fatalf("pending record carries block hash")
	}
	if _, ok := rec[model.KeyBlockNumber]; ok {
		t.Fatalf("pending record carries block number")
	}
}

func TestPauseDelaysWithoutLoss(t *testing.T) {
	feeds := newFakeFeeds()
	out := &recordSink{}
	sub := activate(t, NewTransactions{}, feeds, out)

	sub.Pause()
	sub.Pause()
	const n = 5
	for i := uint64(0); i < n; i++ {
		feeds.emitTx(chaintest.NewTransaction(i))
	}

	time.Sleep(50 * time.Millisecond)
	if got := out.count(); got != 0 {
		t.Fatalf("expected no records while paused, got %d", got)
	}

	sub.Resume()
	records := out.waitFor(t, n)
	for i, rec := range records {
		want := chaintest.NewTransaction(uint64(i)).Hash.Hex()
		if rec[model.KeyTransactionHash] != want {
			t.Fatalf("record %d out of order: %v", i, rec[model.KeyTransactionHash])
		}
	}

	sub.Resume()
	if sub.Paused() {
		t.Fatalf("resume on a running subscription should be a no-op")
	}
}

func TestEmptyRecordIsNotForwarded(t *testing.T) {
	feeds := newFakeFeeds()
	out := &recordSink{}
	sub := activate(t, NewTransactions{}, feeds, out)

	feeds.emitTx(&chain.Transaction{})
	feeds.emitTx(chaintest.NewTransaction(2))

	out.waitFor(t, 1)
	waitUntil(t, "delivered counter", func() bool { return sub.Delivered() == 1 })
	time.Sleep(20 * time.Millisecond)
	if out.count() != 1 || sub.Delivered() != 1 {
		t.Fatalf("empty record should be skipped, got %d records", out.count())
	}
}

func TestHandlerFailureDropsOnlyThatEvent(t *testing.T) {
	feeds := newFakeFeeds()
	bad := chaintest.NewTransaction(1).Hash.Hex()
	out := &recordSink{fail: func(rec model.Record) error {
		if rec[model.KeyTransactionHash] == bad {
			return errors.New("sink rejected record")
		}
		return nil
	}}
	sub := activate(t, NewTransactions{}, feeds, out)

	feeds.emitTx(chaintest.NewTransaction(1))
	feeds.emitTx(chaintest.NewTransaction(2))

	records := out.waitFor(t, 1)
	if records[0][model.KeyTransactionHash] == bad {
		t.Fatalf("rejected record should not be kept")
	}
	waitUntil(t, "delivered counter", func() bool { return sub.Delivered() == 1 })
	if sub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", sub.Dropped())
	}
}

func TestHandlerPanicDropsOnlyThatEvent(t *testing.T) {
	feeds := newFakeFeeds()
	calls := 0
	out := &recordSink{fail: func(model.Record) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	}}
	sub := activate(t, NewTransactions{}, feeds, out)

	feeds.emitTx(chaintest.NewTransaction(1))
	feeds.emitTx(chaintest.NewTransaction(2))

	out.waitFor(t, 1)
	waitUntil(t, "delivered counter", func() bool { return sub.Delivered() == 1 })
	if sub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", sub.Dropped())
	}
}

func TestReplayCompletionIsNotFailure(t *testing.T) {
	feeds := newFakeFeeds()
	sub := activate(t, ReplayTransactions{From: chain.EarliestBlock, To: chain.LatestBlock}, feeds, &recordSink{})

	feeds.end <- nil
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("feed did not complete")
	}
	if err := sub.Err(); err != nil {
		t.Fatalf("completion should not be an error, got %v", err)
	}
}

func TestFeedFailureIsReported(t *testing.T) {
	feeds := newFakeFeeds()
	sub := activate(t, NewBlocks{}, feeds, &recordSink{})
	if err := sub.Err(); err != nil {
		t.Fatalf("running feed should report no error, got %v", err)
	}

	failure := errors.New("connection reset")
	feeds.end <- failure
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("feed did not end")
	}
	if !errors.Is(sub.Err(), failure) {
		t.Fatalf("expected feed failure, got %v", sub.Err())
	}
}

func TestCloseReleasesHeldDelivery(t *testing.T) {
	feeds := newFakeFeeds()
	out := &recordSink{}
	sub, err := Activate(context.Background(), NewTransactions{}, feeds, out.handle, nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	sub.Pause()
	feeds.emitTx(chaintest.NewTransaction(1))
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		sub.Close()
		sub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("close blocked on a paused delivery")
	}
	if out.count() != 0 {
		t.Fatalf("held record should be discarded on close")
	}
}

func TestActivatePropagatesFeedError(t *testing.T) {
	feeds := newFakeFeeds()
	feeds.err = chain.ErrSessionClosed
	if _, err := Activate(context.Background(), NewBlocks{}, feeds, (&recordSink{}).handle, nil); !errors.Is(err, chain.ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}
	if _, err := Activate(context.Background(), nil, feeds, (&recordSink{}).handle, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for nil filter, got %v", err)
	}
}

func TestParseFilter(t *testing.T) {
	cases := map[string]Filter{
		"newBlock":            NewBlocks{},
		"new-block":           NewBlocks{},
		"newTransaction":      NewTransactions{},
		"new-transaction":     NewTransactions{},
		"pendingTransaction":  PendingTransactions{},
		"pending-transaction": PendingTransactions{},
	}
	for name, want := range cases {
		got, err := ParseFilter(name, "", "")
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %#v", name, got)
		}
	}

	got, err := ParseFilter("replay-transaction", "", "")
	if err != nil {
		t.Fatalf("parse replay: %v", err)
	}
	want := ReplayTransactions{From: chain.EarliestBlock, To: chain.LatestBlock}
	if got != want {
		t.Fatalf("replay defaults mismatch: %#v", got)
	}

	got, err = ParseFilter("replayTransaction", "100", "0x80")
	if err != nil {
		t.Fatalf("parse replay range: %v", err)
	}
	want = ReplayTransactions{From: chain.BlockNumber(100), To: chain.BlockNumber(128)}
	if got != want {
		t.Fatalf("replay range mismatch: %#v", got)
	}
}

func TestParseFilterRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name, from, to string
	}{
		{name: "replyTransaction"},
		{name: ""},
		{name: "newBlock", from: "genesis"},
		{name: "replayTransaction", to: "-1"},
	}
	for _, tc := range cases {
		if _, err := ParseFilter(tc.name, tc.from, tc.to); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected invalid config for %+v, got %v", tc, err)
		}
	}
}
