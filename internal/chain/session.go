package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"ethereumSource/internal/scheduler"
)

const (
	headBuffer       = 64
	pendingBuffer    = 256
	heartbeatTimeout = 10 * time.Second
)

// ErrSessionClosed is returned when a feed is requested after Shutdown.
var ErrSessionClosed = errors.New("session is shut down")

// Dial opens the transport connection to the node.
func Dial(ctx context.Context, uri string) (*rpc.Client, error) {
	return rpc.DialContext(ctx, uri)
}

// Session is a client session bound to one node connection. It turns node
// subscriptions and block queries into event feeds. Each feed delivers on its
// own goroutine.
type Session struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger *zap.Logger

	mu            sync.Mutex
	subs          []event.Subscription
	closed        bool
	head          uint64
	stopHeartbeat func()
}

// NewSession builds a session over an open connection. When sched is non-nil the
// session checks node liveness once per pollingInterval.
func NewSession(rpcClient *rpc.Client, pollingInterval time.Duration, sched *scheduler.Scheduler, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		rpc:    rpcClient,
		eth:    ethclient.NewClient(rpcClient),
		logger: logger,
	}
	if sched != nil {
		s.stopHeartbeat = sched.Every(pollingInterval, s.heartbeat)
	}
	return s
}

// Head returns the latest block number seen by the heartbeat, or 0.
func (s *Session) Head() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// SubscribeBlocks delivers every new block, with transaction bodies, to fn.
func (s *Session) SubscribeBlocks(ctx context.Context, fn func(*Block)) (event.Subscription, error) {
	return s.subscribeHeads(ctx, fn)
}

// SubscribeTransactions delivers every transaction of every new block to fn.
func (s *Session) SubscribeTransactions(ctx context.Context, fn func(*Transaction)) (event.Subscription, error) {
	return s.subscribeHeads(ctx, func(block *Block) {
		for _, tx := range block.Transactions {
			if tx != nil {
				fn(tx)
			}
		}
	})
}

// SubscribePendingTransactions delivers transactions that entered the node's pool to fn.
func (s *Session) SubscribePendingTransactions(ctx context.Context, fn func(*Transaction)) (event.Subscription, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	hashes := make(chan common.Hash, pendingBuffer)
	sub, err := s.rpc.EthSubscribe(ctx, hashes, "newPendingTransactions")
	if err != nil {
		return nil, fmt.Errorf("subscribe pending transactions: %w", err)
	}

	return s.track(event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		fetchCtx, cancel := quitContext(quit)
		defer cancel()

		for {
			select {
			case <-quit:
				return nil
			case err := <-sub.Err():
				return err
			case hash := <-hashes:
				tx, err := s.transactionByHash(fetchCtx, hash)
				if err != nil {
					if fetchCtx.Err() != nil {
						return nil
					}
					s.logger.Warn("fetch pending transaction failed", zap.String("hash", hash.Hex()), zap.Error(err))
					continue
				}
				if tx == nil {
					s.logger.Debug("pending transaction no longer available", zap.String("hash", hash.Hex()))
					continue
				}
				fn(tx)
			}
		}
	}))
}

// ReplayTransactions delivers every transaction in the inclusive block range
// [from, to] to fn, block by block. The feed ends with a nil error once the
// range is exhausted.
func (s *Session) ReplayTransactions(ctx context.Context, from, to BlockParam, fn func(*Transaction)) (event.Subscription, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	blockRange, ok, err := ResolveRange(ctx, from, to, s.eth.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("resolve replay range: %w", err)
	}
	if !ok {
		s.logger.Info("nothing to replay", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	} else {
		s.logger.Info("replay start", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return s.track(event.NewSubscription(func(quit <-chan struct{}) error {
		if !ok {
			return nil
		}
		fetchCtx, cancel := quitContext(quit)
		defer cancel()

		for number := blockRange.From; ; number++ {
			select {
			case <-quit:
				return nil
			default:
			}

			block, err := s.blockByNumber(fetchCtx, number)
			if err != nil {
				if fetchCtx.Err() != nil {
					return nil
				}
				return fmt.Errorf("replay block %d: %w", number, err)
			}
			if block != nil {
				for _, tx := range block.Transactions {
					if tx != nil {
						fn(tx)
					}
				}
			}
			if number == blockRange.To {
				s.logger.Info("replay complete", zap.Uint64("blocks", blockRange.Len()))
				return nil
			}
		}
	}))
}

// Shutdown cancels every feed opened by the session and stops the heartbeat.
// It does not close the underlying connection.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	stop := s.stopHeartbeat
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (s *Session) subscribeHeads(ctx context.Context, onBlock func(*Block)) (event.Subscription, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	heads := make(chan *headNotification, headBuffer)
	sub, err := s.rpc.EthSubscribe(ctx, heads, "newHeads")
	if err != nil {
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}

	return s.track(event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		fetchCtx, cancel := quitContext(quit)
		defer cancel()

		for {
			select {
			case <-quit:
				return nil
			case err := <-sub.Err():
				return err
			case head := <-heads:
				block, err := s.blockByHash(fetchCtx, head.Hash)
				if err != nil {
					if fetchCtx.Err() != nil {
						return nil
					}
					s.logger.Warn("fetch block failed", zap.String("hash", head.Hash.Hex()), zap.Error(err))
					continue
				}
				if block == nil {
					s.logger.Debug("block not found", zap.String("hash", head.Hash.Hex()))
					continue
				}
				onBlock(block)
			}
		}
	}))
}

func (s *Session) track(sub event.Subscription) (event.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil, ErrSessionClosed
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub, nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) heartbeat(ctx context.Context) {
	if s.isClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	head, err := s.eth.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("node heartbeat failed", zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	s.head = head
	s.mu.Unlock()
	s.logger.Debug("node heartbeat", zap.Uint64("head", head))
}

func (s *Session) blockByHash(ctx context.Context, hash common.Hash) (*Block, error) {
	var block *Block
	if err := s.rpc.CallContext(ctx, &block, "eth_getBlockByHash", hash, true); err != nil {
		return nil, err
	}
	return block, nil
}

func (s *Session) blockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var block *Block
	if err := s.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return nil, err
	}
	return block, nil
}

func (s *Session) transactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var tx *Transaction
	if err := s.rpc.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	return tx, nil
}

// quitContext returns a context cancelled once quit is closed.
func quitContext(quit <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
