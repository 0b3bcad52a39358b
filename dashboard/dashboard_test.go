package dashboard

import (
	"testing"
)

func newTestClient() *Client {
	return &Client{
		ID:            "test-client",
		subscriptions: make(map[string]bool),
	}
}

func TestClientShouldReceiveRespectsSubscriptions(t *testing.T) {
	c := newTestClient()

	statsMsg := &Message{Type: MsgTypeStats}
	if c.shouldReceive(statsMsg) {
		t.Fatal("expected no stats without a subscription")
	}

	c.subscriptions["stats"] = true
	if !c.shouldReceive(statsMsg) {
		t.Fatal("expected stats to be received once subscribed")
	}

	blockMsg := &Message{Type: MsgTypeNewBlock}
	if c.shouldReceive(blockMsg) {
		t.Fatal("expected no blocks without a blocks subscription")
	}

	c.subscriptions["blocks"] = true
	if !c.shouldReceive(blockMsg) {
		t.Fatal("expected blocks to be received once subscribed")
	}
}

func TestClientShouldReceiveUnknownMessageType(t *testing.T) {
	c := newTestClient()
	c.subscriptions["stats"] = true
	c.subscriptions["blocks"] = true
	c.subscriptions["shares"] = true

	if c.shouldReceive(&Message{Type: MessageType("something_else")}) {
		t.Fatal("expected an unrecognized message type to never be delivered")
	}
}

func TestHandleMessageSubscribeAndUnsubscribe(t *testing.T) {
	c := newTestClient()

	c.handleMessage(&Message{Type: MsgTypeSubscribe, Data: []byte(`{"channels":["stats","shares"]}`)})

	c.mu.RLock()
	_, hasStats := c.subscriptions["stats"]
	_, hasShares := c.subscriptions["shares"]
	c.mu.RUnlock()
	if !hasStats || !hasShares {
		t.Fatalf("expected stats and shares subscriptions, got %v", c.subscriptions)
	}

	c.handleMessage(&Message{Type: MsgTypeUnsubscribe, Data: []byte(`{"channels":["stats"]}`)})

	c.mu.RLock()
	_, stillHasStats := c.subscriptions["stats"]
	c.mu.RUnlock()
	if stillHasStats {
		t.Fatal("expected the stats subscription to have been removed")
	}
}

func TestHandleMessageIgnoresMalformedPayload(t *testing.T) {
	c := newTestClient()
	c.handleMessage(&Message{Type: MsgTypeSubscribe, Data: []byte(`not json`)})

	if len(c.subscriptions) != 0 {
		t.Fatalf("expected malformed subscribe payload to be ignored, got %v", c.subscriptions)
	}
}
