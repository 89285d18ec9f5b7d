package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"klaxon/log"
	"klaxon/monitor"
)

// indexHTML is the embedded dashboard page.
//
//go:embed web/index.html
var indexHTML string

const (
	webPortBase = 5000
	webPortScan = 100

	// sendQueueSize bounds one client's unread event backlog. A client
	// that falls this far behind is dropped rather than waited on.
	sendQueueSize = 16
	writeTimeout  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
// The dashboard is meant for the local machine and the local network and
// nothing else.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		log.Warnf("rejected websocket connection: invalid origin %q", origin)
		return false
	}

	host := u.Hostname()

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	log.Warnf("rejected websocket connection from origin %q", origin)
	return false
}

type rmsEvent struct {
	Type string  `json:"type"`
	RMS  float64 `json:"rms"`
	Time float64 `json:"time"`
}

type alarmEvent struct {
	Type string  `json:"type"`
	RMS  float64 `json:"rms"`
}

// webHub pushes monitor events to connected dashboard browsers. All
// methods are safe on a nil hub so callers need no -web checks.
type webHub struct {
	threshold float64

	mu      sync.Mutex
	clients map[*webClient]bool
}

// webClient is one connected dashboard browser. Its writer goroutine is
// the sole writer to the connection and drains the queue; broadcasts
// only ever touch the queue.
type webClient struct {
	conn  *websocket.Conn
	queue chan []byte
}

// writeLoop owns the connection's write side. It exits when the queue
// closes or a write fails, and closing the socket on the way out also
// unblocks the read side in handleWS.
func (c *webClient) writeLoop() {
	defer c.conn.Close()
	for msg := range c.queue {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func newWebHub(threshold float64) *webHub {
	return &webHub{
		threshold: threshold,
		clients:   make(map[*webClient]bool),
	}
}

// SendSample broadcasts one reading, plus an alarm event when it crosses
// the threshold. The page re-arms its banner timeout on every alarm
// event, so a continuous noise keeps the banner up.
func (h *webHub) SendSample(s monitor.Sample) {
	if h == nil {
		return
	}
	h.broadcast(rmsEvent{Type: "rms_update", RMS: s.RMS, Time: s.Time})
	if s.RMS > h.threshold {
		h.broadcast(alarmEvent{Type: "alarm", RMS: s.RMS})
	}
}

// broadcast queues one event for every client and never blocks: the
// monitor's sampling loop calls this on its tick, so a stalled browser
// loses its connection, not the whole alarm.
func (h *webHub) broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.queue <- payload:
		default:
			// A full queue means the writer is stuck or hopelessly
			// behind. Closing the queue ends its writeLoop.
			delete(h.clients, c)
			close(c.queue)
			log.Warnf("dropping stalled dashboard client (%d events unread)", sendQueueSize)
		}
	}
}

// drop removes the client and closes its queue exactly once; broadcast
// may have reaped it already.
func (h *webHub) drop(c *webClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.queue)
	}
}

func (h *webHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *webHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}
	c := &webClient{conn: conn, queue: make(chan []byte, sendQueueSize)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Infof("dashboard client connected (%d total)", h.clientCount())

	go c.writeLoop()

	// Drain until the browser goes away; clients never send data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

// serveWeb binds the first free port in the scan range and serves the
// dashboard on all interfaces, so a phone on the same network works.
// Returns the URL to print.
func serveWeb(hub *webHub) (string, error) {
	page := strings.ReplaceAll(indexHTML, "__THRESHOLD__",
		strconv.FormatFloat(hub.threshold, 'g', -1, 64))

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/ws", hub.handleWS)

	var ln net.Listener
	var err error
	for port := webPortBase; port < webPortBase+webPortScan; port++ {
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			break
		}
	}
	if ln == nil {
		return "", fmt.Errorf("no free port in %d-%d: %w", webPortBase, webPortBase+webPortScan-1, err)
	}

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			log.Errorf("web server: %v", err)
		}
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	webURL := fmt.Sprintf("http://%s:%s", localIP(), port)
	log.WebServing(webURL)
	return webURL, nil
}

// localIP finds the address a LAN peer would use. The UDP dial sends no
// packets; it only resolves the route.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
