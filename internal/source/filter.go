package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"ethereumSource/internal/chain"
	"ethereumSource/internal/model"
)

const (
	FilterNewBlock           = "newBlock"
	FilterNewTransaction     = "newTransaction"
	FilterPendingTransaction = "pendingTransaction"
	FilterReplayTransaction  = "replayTransaction"
)

var filterAliases = map[string]string{
	FilterNewBlock:           FilterNewBlock,
	"new-block":              FilterNewBlock,
	FilterNewTransaction:     FilterNewTransaction,
	"new-transaction":        FilterNewTransaction,
	FilterPendingTransaction: FilterPendingTransaction,
	"pending-transaction":    FilterPendingTransaction,
	FilterReplayTransaction:  FilterReplayTransaction,
	"replay-transaction":     FilterReplayTransaction,
}

// Filter selects the feed a connector subscribes to. It is one of NewBlocks,
// NewTransactions, PendingTransactions or ReplayTransactions.
type Filter interface {
	Name() string
	isFilter()
}

// NewBlocks emits every new block.
type NewBlocks struct{}

// NewTransactions emits every transaction confirmed in a new block.
type NewTransactions struct{}

// PendingTransactions emits transactions that have not been placed in a block yet.
type PendingTransactions struct{}

// ReplayTransactions emits every transaction in the inclusive range [From, To] and then completes.
type ReplayTransactions struct {
	From chain.BlockParam
	To   chain.BlockParam
}

func (NewBlocks) Name() string           { return FilterNewBlock }
func (NewTransactions) Name() string     { return FilterNewTransaction }
func (PendingTransactions) Name() string { return FilterPendingTransaction }
func (ReplayTransactions) Name() string  { return FilterReplayTransaction }

func (NewBlocks) isFilter()           {}
func (NewTransactions) isFilter()     {}
func (PendingTransactions) isFilter() {}
func (ReplayTransactions) isFilter()  {}

// ParseFilter validates a filter name and the replay range. The range is
// validated for every filter but only kept for replayTransaction; empty ends
// default to earliest and latest.
func ParseFilter(name, fromBlock, toBlock string) (Filter, error) {
	from, err := parseRangeEnd(fromBlock, chain.EarliestBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: from block: %v", ErrInvalidConfig, err)
	}
	to, err := parseRangeEnd(toBlock, chain.LatestBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: to block: %v", ErrInvalidConfig, err)
	}

	switch filterAliases[strings.TrimSpace(name)] {
	case FilterNewBlock:
		return NewBlocks{}, nil
	case FilterNewTransaction:
		return NewTransactions{}, nil
	case FilterPendingTransaction:
		return PendingTransactions{}, nil
	case FilterReplayTransaction:
		return ReplayTransactions{From: from, To: to}, nil
	default:
		return nil, fmt.Errorf("%w: expected '%s' or '%s' or '%s' or '%s' for filter, but got '%s'", ErrInvalidConfig,
			FilterNewBlock, FilterNewTransaction, FilterPendingTransaction, FilterReplayTransaction, name)
	}
}

func parseRangeEnd(input string, fallback chain.BlockParam) (chain.BlockParam, error) {
	if strings.TrimSpace(input) == "" {
		return fallback, nil
	}
	return chain.ParseBlockParam(input)
}

// Feeds is the node side of a filter: one subscription per feed kind.
// *chain.Session implements it.
type Feeds interface {
	SubscribeBlocks(ctx context.Context, fn func(*chain.Block)) (event.Subscription, error)
	SubscribeTransactions(ctx context.Context, fn func(*chain.Transaction)) (event.Subscription, error)
	SubscribePendingTransactions(ctx context.Context, fn func(*chain.Transaction)) (event.Subscription, error)
	ReplayTransactions(ctx context.Context, from, to chain.BlockParam, fn func(*chain.Transaction)) (event.Subscription, error)
}

// RecordHandler receives every non-empty record that passed the gate.
type RecordHandler func(ctx context.Context, record model.Record) error

// Subscription is the handle of one activated filter. It owns the flow gate
// consulted before every record is handed on.
type Subscription struct {
	filter Filter
	gate   *Gate
	feed   event.Subscription
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	done      chan struct{}
	err       error
	closeOnce sync.Once
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Activate opens the feed selected by filter and wires every event through the
// matching mapper and the gate to onRecord. Records are delivered on the feed's
// goroutine.
func Activate(ctx context.Context, filter Filter, feeds Feeds, onRecord RecordHandler, logger *zap.Logger) (*Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filter == nil {
		return nil, fmt.Errorf("%w: filter is nil", ErrInvalidConfig)
	}

	deliverCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		filter: filter,
		gate:   NewGate(),
		logger: logger.With(zap.String("filter", filter.Name())),
		ctx:    deliverCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var (
		feed event.Subscription
		err  error
	)
	switch f := filter.(type) {
	case NewBlocks:
		feed, err = feeds.SubscribeBlocks(ctx, func(block *chain.Block) {
			s.deliver(onRecord, func() model.Record { return MapBlock(block) })
		})
	case NewTransactions:
		feed, err = feeds.SubscribeTransactions(ctx, s.transactionHandler(onRecord, MapTransaction))
	case PendingTransactions:
		feed, err = feeds.SubscribePendingTransactions(ctx, s.transactionHandler(onRecord, MapPendingTransaction))
	case ReplayTransactions:
		feed, err = feeds.ReplayTransactions(ctx, f.From, f.To, s.transactionHandler(onRecord, MapTransaction))
	default:
		err = fmt.Errorf("%w: unsupported filter %T", ErrInvalidConfig, filter)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	s.feed = feed
	go s.watch()
	return s, nil
}

// Filter returns the filter this subscription was activated with.
func (s *Subscription) Filter() Filter {
	return s.filter
}

// Pause holds delivery until Resume.
func (s *Subscription) Pause() {
	s.gate.Pause()
}

// Resume releases every delivery held by Pause.
func (s *Subscription) Resume() {
	s.gate.Resume()
}

// Paused reports whether delivery is held.
func (s *Subscription) Paused() bool {
	return s.gate.Paused()
}

// Done is closed once the feed has ended, by completion, failure or Close.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the feed ended with. It is nil while the feed runs and
// after a clean completion.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Delivered returns the number of records handed to onRecord successfully.
func (s *Subscription) Delivered() uint64 {
	return s.delivered.Load()
}

// Dropped returns the number of records lost to handler errors or panics.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close deactivates the filter. Deliveries held by the gate are released and
// discarded, then the feed is cancelled. Close is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.gate.Close()
		s.cancel()
		s.feed.Unsubscribe()
		<-s.done
	})
}

func (s *Subscription) transactionHandler(onRecord RecordHandler, mapper func(*chain.Transaction) model.Record) func(*chain.Transaction) {
	return func(tx *chain.Transaction) {
		s.deliver(onRecord, func() model.Record { return mapper(tx) })
	}
}

func (s *Subscription) deliver(onRecord RecordHandler, build func() model.Record) {
	defer func() {
		if r := recover(); r != nil {
			s.dropped.Add(1)
			s.logger.Warn("event dropped", zap.Any("panic", r))
		}
	}()

	record := build()
	if err := s.gate.AwaitIfPaused(s.ctx); err != nil {
		s.logger.Debug("record discarded", zap.Error(err))
		return
	}
	if record.Empty() {
		return
	}
	if err := onRecord(s.ctx, record); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("record dropped", zap.Error(err))
		return
	}
	s.delivered.Add(1)
}

func (s *Subscription) watch() {
	err := <-s.feed.Err()
	if err != nil {
		s.logger.Error("feed failed", zap.Error(err))
	} else {
		s.logger.Info("feed ended", zap.Uint64("delivered", s.delivered.Load()))
	}
	s.err = err
	close(s.done)
}
