package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"klaxon/monitor"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *webHub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for hub.clientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.clientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebHubEventStream(t *testing.T) {
	hub := newWebHub(0.05)
	srv := httptest.NewServer(http.HandlerFunc(hub.handleWS))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.SendSample(monitor.Sample{Time: 1, RMS: 0.2})  // loud: update plus alarm
	hub.SendSample(monitor.Sample{Time: 2, RMS: 0.01}) // quiet: update only
	hub.SendSample(monitor.Sample{Time: 3, RMS: 0.2})

	want := []string{
		`{"type":"rms_update","rms":0.2,"time":1}`,
		`{"type":"alarm","rms":0.2}`,
		`{"type":"rms_update","rms":0.01,"time":2}`,
		`{"type":"rms_update","rms":0.2,"time":3}`,
		`{"type":"alarm","rms":0.2}`,
	}
	for i, w := range want {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if string(msg) != w {
			t.Errorf("event %d = %s, want %s", i, msg, w)
		}
	}
}

func TestWebHubDropsStalledClient(t *testing.T) {
	hub := newWebHub(0.05)

	// A client whose writer never drains, like a browser tab on a phone
	// that went to sleep mid-session.
	c := &webClient{queue: make(chan []byte, sendQueueSize)}
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3*sendQueueSize; i++ {
			hub.SendSample(monitor.Sample{Time: float64(i), RMS: 0.2})
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("SendSample blocked on a stalled client; the sampling loop would freeze with it")
	}

	if n := hub.clientCount(); n != 0 {
		t.Errorf("clients after overflow = %d, want 0", n)
	}
	// The closed queue is the writer's signal to shut the socket down.
	drained := 0
	for range c.queue {
		drained++
	}
	if drained != sendQueueSize {
		t.Errorf("events queued before the drop = %d, want %d", drained, sendQueueSize)
	}
}

func TestWebHubNilSafe(t *testing.T) {
	var hub *webHub
	// Must not panic; every surface runs without -web.
	hub.SendSample(monitor.Sample{Time: 1, RMS: 0.2})
}
