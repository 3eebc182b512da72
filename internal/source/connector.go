package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"ethereumSource/internal/chain"
	"ethereumSource/internal/model"
	"ethereumSource/internal/scheduler"
	"ethereumSource/internal/sink"
)

// DefaultPollingInterval is the node liveness check period used when none is configured.
const DefaultPollingInterval = 3600000 * time.Millisecond

// Config is fixed at construction.
type Config struct {
	URI             string
	Filter          string
	FromBlock       string
	ToBlock         string
	PollingInterval time.Duration
}

// State is a connector lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DialFunc opens the transport to the node.
type DialFunc func(ctx context.Context, uri string) (*rpc.Client, error)

// Option customizes a Connector.
type Option func(*Connector)

// WithDialer replaces chain.Dial.
func WithDialer(dial DialFunc) Option {
	return func(c *Connector) {
		c.dial = dial
	}
}

// Connector streams one filter's records from a node into a sink.
type Connector struct {
	cfg    Config
	filter Filter
	sink   sink.Sink
	sched  *scheduler.Scheduler
	dial   DialFunc
	logger *zap.Logger

	mu        sync.Mutex
	state     atomic.Int32
	transport *rpc.Client
	session   *chain.Session
	active    atomic.Pointer[Subscription]
}

// NewConnector validates cfg and builds an idle connector. No network
// activity happens until Connect.
func NewConnector(cfg Config, out sink.Sink, sched *scheduler.Scheduler, logger *zap.Logger, opts ...Option) (*Connector, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("%w: uri is required", ErrInvalidConfig)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidConfig)
	}
	if cfg.PollingInterval < 0 {
		return nil, fmt.Errorf("%w: polling interval must not be negative", ErrInvalidConfig)
	}
	if cfg.PollingInterval == 0 {
		cfg.PollingInterval = DefaultPollingInterval
	}
	filter, err := ParseFilter(cfg.Filter, cfg.FromBlock, cfg.ToBlock)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sched == nil {
		sched = scheduler.New(logger)
	}

	c := &Connector{
		cfg:    cfg,
		filter: filter,
		sink:   out,
		sched:  sched,
		dial:   chain.Dial,
		logger: logger.With(zap.String("filter", filter.Name())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Filter returns the validated filter.
func (c *Connector) Filter() Filter {
	return c.filter
}

// State returns the current lifecycle state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Connect dials the node, opens a session and activates the filter. A failure
// leaves the connector idle so the whole cycle can be retried.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateIdle {
		return ErrAlreadyConnected
	}
	c.setState(StateConnecting)
	c.logger.Info("connecting", zap.String("uri", c.cfg.URI))

	transport, err := c.dial(ctx, c.cfg.URI)
	if err != nil {
		if transport != nil {
			transport.Close()
		}
		c.setState(StateIdle)
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionUnavailable, c.cfg.URI, err)
	}

	session := chain.NewSession(transport, c.cfg.PollingInterval, c.sched, c.logger)
	sub, err := Activate(ctx, c.filter, session, c.forward, c.logger)
	if err != nil {
		session.Shutdown()
		transport.Close()
		c.sched.Shutdown()
		c.setState(StateIdle)
		return fmt.Errorf("%w: activate %s: %w", ErrConnectionUnavailable, c.filter.Name(), err)
	}

	c.transport = transport
	c.session = session
	c.active.Store(sub)
	c.setState(StateConnected)
	c.logger.Info("connected")
	return nil
}

// Disconnect deactivates the filter and releases the session, transport and
// scheduled jobs in that order. On an idle connector it only shuts down the
// scheduler.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateConnected {
		c.sched.Shutdown()
		return
	}
	c.setState(StateDisconnecting)

	if sub := c.active.Swap(nil); sub != nil {
		sub.Close()
	}
	if c.session != nil {
		c.session.Shutdown()
		c.session = nil
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.sched.Shutdown()

	c.setState(StateIdle)
	c.logger.Info("disconnected")
}

// Pause holds delivery of the active filter.
func (c *Connector) Pause() error {
	sub := c.active.Load()
	if sub == nil {
		return ErrNotConnected
	}
	sub.Pause()
	c.logger.Info("paused")
	return nil
}

// Resume releases delivery of the active filter.
func (c *Connector) Resume() error {
	sub := c.active.Load()
	if sub == nil {
		return ErrNotConnected
	}
	sub.Resume()
	c.logger.Info("resumed")
	return nil
}

// Paused reports whether the active filter is paused.
func (c *Connector) Paused() bool {
	sub := c.active.Load()
	return sub != nil && sub.Paused()
}

// Wait blocks until the active feed ends or ctx is done. A finite feed that
// completes returns nil; a failed feed returns its error.
func (c *Connector) Wait(ctx context.Context) error {
	sub := c.active.Load()
	if sub == nil {
		return ErrNotConnected
	}
	select {
	case <-sub.Done():
		return sub.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivered returns the number of records forwarded by the active filter.
func (c *Connector) Delivered() uint64 {
	sub := c.active.Load()
	if sub == nil {
		return 0
	}
	return sub.Delivered()
}

// CurrentState returns the resumable position of the connector. Nothing is
// checkpointed, so it is always nil.
func (c *Connector) CurrentState() interface{} {
	return nil
}

// RestoreState ignores state; a restart always begins from a cold subscription.
func (c *Connector) RestoreState(interface{}) {}

func (c *Connector) forward(ctx context.Context, record model.Record) error {
	return c.sink.OnEvent(ctx, record, nil)
}

func (c *Connector) setState(state State) {
	c.state.Store(int32(state))
}
