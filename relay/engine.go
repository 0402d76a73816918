package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/metrics"
	"github.com/vitwit/wakurelay/types"
)

const (
	DefaultPollInterval      = 5 * time.Second
	DefaultBroadcastInterval = 30 * time.Second
)

// Transport is the peer-to-peer client the engine relays through.
// *clients.WakuClient satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, topics []string) (bool, error)
	Publish(ctx context.Context, msg types.RelayMessage, topic string) (bool, error)
	GetMessages(ctx context.Context, topic string, contentTopics []string) ([]types.RelayMessage, error)
}

// FeeSource returns the current fee snapshot of a chain.
type FeeSource interface {
	Current(chain types.ChainRef) (*feecache.Snapshot, error)
}

// Availability decides whether fees are broadcast for a chain at all.
type Availability interface {
	Available(ctx context.Context, chain types.ChainRef) (bool, error)
}

type Options struct {
	PubSubTopic       string
	PollInterval      time.Duration
	BroadcastInterval time.Duration
	FeeExpiration     time.Duration
	Chains            []types.ChainRef
}

// Engine owns the subscription, the method registry, the inbound poll loop
// and the outbound fee broadcast loop.
type Engine struct {
	transport    Transport
	registry     *Registry
	fees         FeeSource
	signer       *FeeSigner
	availability Availability
	opts         Options

	mu            sync.RWMutex
	contentTopics []string

	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

func NewEngine(transport Transport, fees FeeSource, signer *FeeSigner, opts Options, log logger.Logger, recorder metrics.Recorder) *Engine {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if opts.PubSubTopic == "" {
		opts.PubSubTopic = DefaultPubSubTopic
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = DefaultBroadcastInterval
	}

	return &Engine{
		transport: transport,
		registry:  NewRegistry(),
		fees:      fees,
		signer:    signer,
		opts:      opts,
		log:       log.With(map[string]any{"component": "relay"}),
		metrics:   recorder,
		now:       time.Now,
	}
}

// SetAvailability installs a check that can suppress fee broadcasts for
// chains the relayer cannot currently serve.
func (e *Engine) SetAvailability(a Availability) {
	e.availability = a
}

func (e *Engine) Register(method string, h MethodHandler) {
	e.registry.Register(method, h)
}

// ContentTopics returns the content topics the engine filters on. It is
// empty before Init.
func (e *Engine) ContentTopics() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.contentTopics...)
}

// Init subscribes to the pubsub topic and computes the content topic set.
func (e *Engine) Init(ctx context.Context) error {
	ok, err := e.transport.Subscribe(ctx, []string{e.opts.PubSubTopic})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", e.opts.PubSubTopic, err)
	}
	if !ok {
		return types.NewError(types.ErrCodeTransport, fmt.Sprintf("node refused subscription to %s", e.opts.PubSubTopic), nil)
	}

	topics := ContentTopics(e.opts.Chains)
	e.mu.Lock()
	e.contentTopics = topics
	e.mu.Unlock()

	e.log.Info("relay subscribed", map[string]any{
		"pubsubTopic":   e.opts.PubSubTopic,
		"contentTopics": topics,
		"methods":       e.registry.Methods(),
	})
	return nil
}

// Run initializes the engine and runs the poll and broadcast loops until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Init(ctx); err != nil {
		return err
	}

	var wg conc.WaitGroup
	wg.Go(func() { e.pollLoop(ctx) })
	wg.Go(func() { e.broadcastLoop(ctx) })
	wg.Wait()
	return ctx.Err()
}

// pollLoop starts the next tick only after the previous one and all of its
// dispatched messages are done.
func (e *Engine) pollLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		e.Poll(ctx)
		timer.Reset(e.opts.PollInterval)
	}
}

// broadcastLoop waits one interval before each tick.
func (e *Engine) broadcastLoop(ctx context.Context) {
	timer := time.NewTimer(e.opts.BroadcastInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := e.BroadcastFees(ctx); err != nil {
			e.log.Warn("fee broadcast incomplete", map[string]any{"err": err})
		}
		timer.Reset(e.opts.BroadcastInterval)
	}
}

// Poll runs one poll tick and returns the number of messages fetched. A
// fetch failure counts as an empty tick.
func (e *Engine) Poll(ctx context.Context) int {
	messages, err := e.transport.GetMessages(ctx, e.opts.PubSubTopic, e.ContentTopics())
	if err != nil {
		e.log.Warn("failed to fetch messages", map[string]any{"err": err})
		e.metrics.IncCounter(metrics.PollFailures, nil)
		return 0
	}

	p := pool.New()
	for _, msg := range messages {
		msg := msg
		e.metrics.IncCounter(metrics.MessagesReceived, nil)
		p.Go(func() { e.dispatch(ctx, msg) })
	}
	p.Wait()
	return len(messages)
}

// dispatch handles one message and contains any failure to it.
func (e *Engine) dispatch(ctx context.Context, msg types.RelayMessage) {
	var err error
	recovered := panics.Try(func() { err = e.HandleMessage(ctx, msg) })
	if recovered != nil {
		err = fmt.Errorf("handler panicked: %w", recovered.AsError())
	}
	if err == nil {
		return
	}

	code := types.ErrorCode(err)
	e.metrics.IncCounter(metrics.MessagesDropped, map[string]string{"code": code})

	fields := map[string]any{"contentTopic": msg.ContentTopic, "err": err}
	switch code {
	case types.ErrCodeMalformedMessage, types.ErrCodeUnknownMethod:
		e.log.Debug("dropped message", fields)
	default:
		e.log.Error("message handling failed", fields)
	}
}

// HandleMessage decodes msg as an RPC request and runs its handler. The
// response, if any, is published on the content topic the request came in
// on. Undecodable payloads and unknown methods return coded errors.
func (e *Engine) HandleMessage(ctx context.Context, msg types.RelayMessage) error {
	if !utf8.Valid(msg.Payload) {
		return types.NewError(types.ErrCodeMalformedMessage, "payload is not UTF-8", nil)
	}

	var req types.RPCRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return types.NewError(types.ErrCodeMalformedMessage, "payload is not a JSON-RPC request", err)
	}
	if req.Method == "" {
		return types.NewError(types.ErrCodeMalformedMessage, "request has no method", nil)
	}

	handler, ok := e.registry.Lookup(req.Method)
	if !ok {
		return types.NewError(types.ErrCodeUnknownMethod, fmt.Sprintf("unknown method %q", req.Method), nil)
	}

	now := e.now()
	log := e.log.With(map[string]any{"contentTopic": msg.ContentTopic, "method": req.Method})
	log.Debug("handling message", map[string]any{"age": msg.Age(now).String()})

	resp := handler.Handle(ctx, req.Params, req.ID, log)
	e.metrics.IncCounter(metrics.MessagesHandled, map[string]string{"code": req.Method})
	if resp == nil {
		return nil
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := e.transport.Publish(ctx, types.NewUTF8Message(string(body), msg.ContentTopic, now), e.opts.PubSubTopic); err != nil {
		return fmt.Errorf("publish response: %w", err)
	}
	return nil
}

// BroadcastFees publishes a signed fee broadcast for every chain
// concurrently. Failures are per chain and are returned together.
func (e *Engine) BroadcastFees(ctx context.Context) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	p := pool.New()
	for _, chain := range e.opts.Chains {
		chain := chain
		p.Go(func() {
			var err error
			recovered := panics.Try(func() { err = e.BroadcastFeesForChain(ctx, chain) })
			if recovered != nil {
				err = fmt.Errorf("chain %s: broadcast panicked: %w", chain, recovered.AsError())
			}
			if err == nil {
				return
			}

			e.metrics.IncCounter(metrics.FeeBroadcastFails, map[string]string{"chain": chain.String(), "code": types.ErrorCode(err)})
			mu.Lock()
			result = multierror.Append(result, err)
			mu.Unlock()
		})
	}
	p.Wait()
	return result.ErrorOrNil()
}

// BroadcastFeesForChain signs the chain's current fee snapshot and
// publishes it on the chain's fees topic.
func (e *Engine) BroadcastFeesForChain(ctx context.Context, chain types.ChainRef) error {
	log := e.log.With(map[string]any{"chain": chain.String()})

	if e.availability != nil {
		ok, err := e.availability.Available(ctx, chain)
		if err != nil {
			return fmt.Errorf("chain %s: availability: %w", chain, err)
		}
		if !ok {
			log.Warn("relayer unavailable on chain, not broadcasting fees", nil)
			return nil
		}
	}

	snap, err := e.fees.Current(chain)
	if err != nil {
		return fmt.Errorf("chain %s: %w", chain, err)
	}

	now := e.now()
	if snap.Expired(now) {
		return types.NewError(types.ErrCodeStaleFeeCache, fmt.Sprintf("chain %s: fee snapshot %s expired", chain, snap.ID), nil)
	}

	// never advertise an ID past the point the validator stops accepting it
	expiration := now.Add(e.opts.FeeExpiration)
	if snap.Expiration.Before(expiration) {
		expiration = snap.Expiration
	}

	msg, err := e.signer.SignFees(snap, expiration)
	if err != nil {
		return fmt.Errorf("chain %s: %w", chain, err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chain %s: marshal fee message: %w", chain, err)
	}

	topic := FeesContentTopic(chain)
	ok, err := e.transport.Publish(ctx, types.NewUTF8Message(string(body), topic, now), e.opts.PubSubTopic)
	if err != nil {
		return fmt.Errorf("chain %s: publish fees: %w", chain, err)
	}

	e.metrics.IncCounter(metrics.FeeBroadcasts, map[string]string{"chain": chain.String()})
	log.Debug("broadcast fees", map[string]any{"feeCacheID": snap.ID, "tokens": len(snap.Fees), "published": ok})
	return nil
}
