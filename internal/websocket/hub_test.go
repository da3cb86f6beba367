package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func waitForClientCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
}

func TestBroadcastDeliversToClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	client := &Client{hub: h, send: make(chan []byte, 8)}
	h.register <- client
	waitForClientCount(t, h, 1)

	if err := h.Broadcast("catalog:updated", map[string]int{"installers": 3}); err != nil {
		t.Fatalf("Broadcast() error: %v", err)
	}

	select {
	case data := <-client.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		if msg.Type != "catalog:updated" {
			t.Errorf("message type = %q, want %q", msg.Type, "catalog:updated")
		}
		if msg.Timestamp == "" {
			t.Error("message missing timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client received no message")
	}
}

// A client whose send buffer is full is dropped during broadcast while
// other goroutines read the client count concurrently.
func TestBroadcastDropsStalledClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	healthy := &Client{hub: h, send: make(chan []byte, 8)}
	stalled := &Client{hub: h, send: make(chan []byte)}
	h.register <- healthy
	h.register <- stalled
	waitForClientCount(t, h, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.ClientCount()
		}
	}()

	if err := h.Broadcast("downloads:state", nil); err != nil {
		t.Fatalf("Broadcast() error: %v", err)
	}
	wg.Wait()

	waitForClientCount(t, h, 1)

	select {
	case <-healthy.send:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy client received no message")
	}

	if _, ok := <-stalled.send; ok {
		t.Error("stalled client's send channel should be closed without a message")
	}
}
