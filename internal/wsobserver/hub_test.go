package wsobserver

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestNewHubInitializesState(t *testing.T) {
	hub := NewHub(testLogger())
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.byRun)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubRegisterAndUnregisterClient(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := &Client{hub: hub, id: "c1", send: make(chan *Event, sendBufferSize), runs: make(map[string]bool)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubDeliversToSubscribedRunOnly(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	subscribed := &Client{hub: hub, id: "subscribed", send: make(chan *Event, sendBufferSize), runs: make(map[string]bool)}
	other := &Client{hub: hub, id: "other", send: make(chan *Event, sendBufferSize), runs: make(map[string]bool)}
	hub.register <- subscribed
	hub.register <- other
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(subscribed, "run-1")

	hub.Publish("node:start", map[string]any{"runId": "run-1", "nodeId": "a"})

	select {
	case ev := <-subscribed.send:
		assert.Equal(t, "node:start", ev.Type)
		assert.Equal(t, "run-1", ev.Payload["runId"])
	case <-time.After(time.Second):
		t.Fatal("subscribed client never received the event")
	}

	select {
	case <-other.send:
		t.Fatal("unsubscribed client should not have received the run-scoped event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastsRunlessEventsToEveryone(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	a := &Client{hub: hub, id: "a", send: make(chan *Event, sendBufferSize), runs: make(map[string]bool)}
	b := &Client{hub: hub, id: "b", send: make(chan *Event, sendBufferSize), runs: make(map[string]bool)}
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.Publish("job:enqueued", map[string]any{"blueprintId": "bp"})

	for _, c := range []*Client{a, b} {
		select {
		case ev := <-c.send:
			assert.Equal(t, "job:enqueued", ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("client %s never received the runless event", c.id)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := &Client{hub: hub, id: "c1", send: make(chan *Event, sendBufferSize), runs: make(map[string]bool)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(client, "run-1")
	hub.Unsubscribe(client, "run-1")

	hub.Publish("node:finish", map[string]any{"runId": "run-1"})

	select {
	case <-client.send:
		t.Fatal("client should not receive events for a run it unsubscribed from")
	case <-time.After(50 * time.Millisecond):
	}
}
