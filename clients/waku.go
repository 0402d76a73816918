package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
)

// Waku node JSON-RPC methods.
const (
	MethodDebugInfo          = "get_waku_v2_debug_v1_info"
	MethodRelaySubscriptions = "post_waku_v2_relay_v1_subscriptions"
	MethodRelayPublish       = "post_waku_v2_relay_v1_message"
	MethodRelayMessages      = "get_waku_v2_relay_v1_messages"
)

const (
	// MaxRetries is the number of additional attempts after a transport failure.
	MaxRetries = 4

	defaultRequestTimeout = 10 * time.Second
)

// WakuClient talks JSON-RPC over HTTP to a local waku relay node. It has no
// knowledge of the relayer protocol.
type WakuClient struct {
	url        string
	rpc        *rpc.Client
	log        logger.Logger
	maxRetries int
}

// NewWakuClient dials the node at url. Dialing over HTTP does not contact
// the node; the first request does.
func NewWakuClient(ctx context.Context, url string, log logger.Logger) (*WakuClient, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}

	httpClient := &http.Client{Timeout: defaultRequestTimeout}
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to dial waku node %s: %w", url, err)
	}

	log = log.With(map[string]any{"component": "waku-client"})
	log.Info("relaying via waku node", map[string]any{"url": url})

	return &WakuClient{
		url:        url,
		rpc:        c,
		log:        log,
		maxRetries: MaxRetries,
	}, nil
}

// Request performs one JSON-RPC call. Transport failures are retried
// immediately up to MaxRetries more times; an error object returned by the
// node is a definitive answer and is returned as-is.
func (c *WakuClient) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var result json.RawMessage
		err := c.rpc.CallContext(ctx, &result, method, params...)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, rpc.ErrNoResult) {
			return json.RawMessage("null"), nil
		}

		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrCodeTransport, method+" cancelled", ctx.Err())
		}

		lastErr = err
		if attempt < c.maxRetries {
			c.log.Debug("error posting to waku node, retrying", map[string]any{
				"method":  method,
				"attempt": attempt + 1,
				"err":     err,
			})
		}
	}

	c.log.Warn("error posting to waku node", map[string]any{"method": method, "err": lastErr})
	return nil, types.NewError(types.ErrCodeTransport, fmt.Sprintf("%s failed", method), lastErr)
}

// GetDebugInfo returns the listen addresses of the node.
func (c *WakuClient) GetDebugInfo(ctx context.Context) ([]string, error) {
	raw, err := c.Request(ctx, MethodDebugInfo)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			c.log.Warn("debug info returned error", map[string]any{"err": err})
			return []string{}, nil
		}
		return nil, err
	}

	var info struct {
		ListenAddresses []string `json:"listenAddresses"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode debug info: %w", err)
	}
	if info.ListenAddresses == nil {
		return []string{}, nil
	}
	return info.ListenAddresses, nil
}

// Subscribe subscribes the node to the given pubsub topics.
func (c *WakuClient) Subscribe(ctx context.Context, topics []string) (bool, error) {
	c.log.Info("subscribing to topics", map[string]any{"topics": topics})

	raw, err := c.Request(ctx, MethodRelaySubscriptions, topics)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("decode subscribe result: %w", err)
	}
	return ok, nil
}

// Publish posts a message on a pubsub topic. A message without payload is
// not sent and reports false.
func (c *WakuClient) Publish(ctx context.Context, msg types.RelayMessage, topic string) (bool, error) {
	if len(msg.Payload) == 0 {
		c.log.Warn("tried to publish empty message", map[string]any{"contentTopic": msg.ContentTopic})
		return false, nil
	}

	c.log.Debug("publishing to content topic", map[string]any{"contentTopic": msg.ContentTopic})
	raw, err := c.Request(ctx, MethodRelayPublish, topic, msg)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("decode publish result: %w", err)
	}
	return ok, nil
}

// GetMessages returns every message the node buffered on topic since the
// last call. With a non-empty contentTopics filter, only messages on those
// content topics are returned; otherwise all messages are, including pings.
func (c *WakuClient) GetMessages(ctx context.Context, topic string, contentTopics []string) ([]types.RelayMessage, error) {
	raw, err := c.Request(ctx, MethodRelayMessages, topic)
	if err != nil {
		return nil, err
	}

	// The node drains its buffer on read, so one undecodable entry must not
	// take the rest of the batch with it.
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "decode relay messages", err)
	}

	messages := make([]types.RelayMessage, 0, len(entries))
	for i, entry := range entries {
		var msg types.RelayMessage
		if err := json.Unmarshal(entry, &msg); err != nil {
			c.log.Debug("skipping undecodable relay message", map[string]any{"topic": topic, "index": i, "err": err})
			continue
		}
		messages = append(messages, msg)
	}
	return FilterMessages(messages, contentTopics), nil
}

// FilterMessages keeps the messages whose content topic is in contentTopics.
// An empty filter keeps everything.
func FilterMessages(messages []types.RelayMessage, contentTopics []string) []types.RelayMessage {
	if len(contentTopics) == 0 {
		return messages
	}

	allowed := make(map[string]struct{}, len(contentTopics))
	for _, t := range contentTopics {
		allowed[t] = struct{}{}
	}

	filtered := make([]types.RelayMessage, 0, len(messages))
	for _, m := range messages {
		if _, ok := allowed[m.ContentTopic]; ok {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// URL returns the node endpoint.
func (c *WakuClient) URL() string {
	return c.url
}

func (c *WakuClient) Close() {
	c.rpc.Close()
}
