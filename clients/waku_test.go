package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/wakurelay/types"
)

// fakeNode is a minimal waku relay JSON-RPC endpoint.
type fakeNode struct {
	mu        sync.Mutex
	failures  int
	calls     int
	rpcError  bool
	methods   []string
	messages  []types.RelayMessage
	raw       json.RawMessage
	published []types.RelayMessage
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls++
	if n.calls <= n.failures {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.methods = append(n.methods, req.Method)

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if n.rpcError {
		resp["error"] = map[string]any{"code": -32000, "message": "relay not mounted"}
	} else {
		switch req.Method {
		case MethodRelayMessages:
			if n.raw != nil {
				resp["result"] = n.raw
			} else {
				resp["result"] = n.messages
			}
		case MethodRelayPublish:
			var msg types.RelayMessage
			if len(req.Params) == 2 {
				_ = json.Unmarshal(req.Params[1], &msg)
			}
			n.published = append(n.published, msg)
			resp["result"] = true
		case MethodRelaySubscriptions:
			resp["result"] = true
		case MethodDebugInfo:
			resp["result"] = map[string]any{"listenAddresses": []string{"/ip4/127.0.0.1/tcp/60000"}}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func newTestWakuClient(t *testing.T, node *fakeNode) *WakuClient {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := NewWakuClient(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestWakuClient_RetriesTransportFailures(t *testing.T) {
	node := &fakeNode{failures: 3}
	c := newTestWakuClient(t, node)

	ok, err := c.Subscribe(context.Background(), []string{"/waku/2/default-waku/proto"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, node.callCount())
}

func TestWakuClient_GivesUpAfterMaxRetries(t *testing.T) {
	node := &fakeNode{failures: 5}
	c := newTestWakuClient(t, node)

	_, err := c.Request(context.Background(), MethodDebugInfo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTransport))
	assert.Equal(t, 1+MaxRetries, node.callCount())
}

func TestWakuClient_NodeErrorIsNotRetried(t *testing.T) {
	node := &fakeNode{rpcError: true}
	c := newTestWakuClient(t, node)

	_, err := c.Request(context.Background(), MethodRelayMessages, "/waku/2/default-waku/proto")
	require.Error(t, err)
	assert.False(t, errors.Is(err, types.ErrTransport))
	assert.Equal(t, 1, node.callCount())
}

func TestWakuClient_PublishEmptyPayload(t *testing.T) {
	node := &fakeNode{}
	c := newTestWakuClient(t, node)

	ok, err := c.Publish(context.Background(), types.RelayMessage{ContentTopic: "/railgun/v2/default/json"}, "topic")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, node.callCount())
}

func TestWakuClient_Publish(t *testing.T) {
	node := &fakeNode{}
	c := newTestWakuClient(t, node)

	msg := types.RelayMessage{ContentTopic: "/railgun/v2/evm-1-fees/json", Payload: types.Payload("hello"), Timestamp: 1700000000}
	ok, err := c.Publish(context.Background(), msg, "/waku/2/default-waku/proto")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, node.published, 1)
	assert.Equal(t, msg, node.published[0])
}

func TestWakuClient_GetMessagesFilter(t *testing.T) {
	node := &fakeNode{messages: []types.RelayMessage{
		{ContentTopic: "x", Payload: types.Payload("a"), Timestamp: 1},
		{ContentTopic: "/waku/2/ping", Payload: types.Payload("ping"), Timestamp: 2},
		{ContentTopic: "y", Payload: types.Payload("b"), Timestamp: 3},
	}}
	c := newTestWakuClient(t, node)

	all, err := c.GetMessages(context.Background(), "topic", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyX, err := c.GetMessages(context.Background(), "topic", []string{"x"})
	require.NoError(t, err)
	require.Len(t, onlyX, 1)
	assert.Equal(t, "x", onlyX[0].ContentTopic)
	assert.Equal(t, types.Payload("a"), onlyX[0].Payload)
}

func TestWakuClient_GetMessagesSkipsUndecodableEntries(t *testing.T) {
	node := &fakeNode{raw: json.RawMessage(`[
		{"contentTopic":"x","payload":"6869","timestamp":1},
		{"contentTopic":"x","payload":"zz","timestamp":2},
		{"contentTopic":"x","payload":"61","timestamp":"soon"},
		{"contentTopic":"y","payload":[98],"timestamp":3}
	]`)}
	c := newTestWakuClient(t, node)

	msgs, err := c.GetMessages(context.Background(), "topic", nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.Payload("hi"), msgs[0].Payload)
	assert.Equal(t, types.Payload("b"), msgs[1].Payload)

	node.mu.Lock()
	node.raw = json.RawMessage(`{"not":"a list"}`)
	node.mu.Unlock()
	_, err = c.GetMessages(context.Background(), "topic", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeMalformedMessage, types.ErrorCode(err))
}

func TestWakuClient_GetDebugInfo(t *testing.T) {
	c := newTestWakuClient(t, &fakeNode{})
	addrs, err := c.GetDebugInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/60000"}, addrs)

	failing := newTestWakuClient(t, &fakeNode{rpcError: true})
	addrs, err = failing.GetDebugInfo(context.Background())
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestPayloadAcceptsByteArray(t *testing.T) {
	var msg types.RelayMessage
	require.NoError(t, json.Unmarshal([]byte(`{"contentTopic":"x","payload":[104,105],"timestamp":5}`), &msg))
	assert.Equal(t, types.Payload("hi"), msg.Payload)
}
