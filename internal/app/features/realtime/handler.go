// internal/app/features/realtime/handler.go
// Package realtime serves the websocket channel used to join groups,
// receive group snapshots and send files in chunks.
package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/groupdrop/internal/app/system/limits"
	"github.com/dalemusser/groupdrop/internal/app/system/membership"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"github.com/dalemusser/waffle/pantry/ratelimit"
	"github.com/dalemusser/waffle/pantry/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes the realtime channel.
type Options struct {
	// AllowedOrigins lists origins allowed to connect. Empty means
	// same-origin only.
	AllowedOrigins []string
	// AllowAnyOrigin disables origin checks (development).
	AllowAnyOrigin bool
	SendBuffer     int
	WriteTimeout   time.Duration
	// JoinRate and JoinBurst throttle join frames per connection, so a
	// socket cannot be used to guess group codes faster than the HTTP
	// join check allows.
	JoinRate  float64
	JoinBurst int
}

const clientKey = "realtime.client"

// Handler upgrades connections and runs one read loop per client.
type Handler struct {
	Members *membership.Controller
	Uploads *reassembly.Reassembler
	Log     *zap.Logger

	opts    Options
	accept  websocket.AcceptOptions
	sockets *websocket.Hub

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewHandler constructs a realtime Handler.
func NewHandler(members *membership.Controller, uploads *reassembly.Reassembler, opts Options, logger *zap.Logger) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.JoinRate <= 0 {
		opts.JoinRate = limits.JoinsPerSecond
	}
	if opts.JoinBurst <= 0 {
		opts.JoinBurst = limits.JoinBurst
	}
	accept := websocket.DefaultAcceptOptions()
	accept.InsecureSkipVerify = opts.AllowAnyOrigin
	accept.OriginPatterns = originPatterns(opts.AllowedOrigins)
	return &Handler{
		Members: members,
		Uploads: uploads,
		Log:     logger,
		opts:    opts,
		accept:  accept,
		sockets: websocket.NewHub(),
	}
}

// originPatterns turns configured origins into the host patterns the
// upgrader matches against. Same-origin requests are always accepted.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, o)
	}
	return out
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /ws                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closing := h.closing
	h.mu.Unlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &h.accept)
	if err != nil {
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c, ok := h.register(conn)
	if !ok {
		_ = conn.CloseWithReason(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.wg.Done()

	c.log.Debug("realtime client connected", zap.String("remote_addr", r.RemoteAddr))
	go c.writeLoop()
	h.readLoop(context.WithoutCancel(r.Context()), c)
}

func (h *Handler) register(conn *websocket.Conn) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return nil, false
	}
	sock := h.sockets.NewClient(conn, uuid.NewString())
	if sock == nil {
		return nil, false
	}
	c := newClient(sock, h.opts.SendBuffer, h.opts.WriteTimeout, h.Log)
	c.joins = ratelimit.New(h.opts.JoinRate, h.opts.JoinBurst)
	sock.Set(clientKey, c)
	h.wg.Add(1)
	return c, true
}

func (h *Handler) readLoop(ctx context.Context, c *client) {
	defer h.disconnect(ctx, c)

	conn := c.sock.Conn()
	conn.SetReadLimit(limits.MaxFrameSize)
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			c.log.Debug("realtime read ended", zap.Error(err))
			return
		}
		h.dispatch(ctx, c, raw)
	}
}

// disconnect runs the cleanup path for a closed connection: the member
// bound to it leaves, and its partial uploads are dropped.
func (h *Handler) disconnect(ctx context.Context, c *client) {
	c.close()
	_ = c.sock.Close()

	codes := h.Members.Disconnect(ctx, c.id)
	dropped := h.Uploads.DiscardConn(c.id)
	c.log.Debug("realtime client disconnected",
		zap.Strings("groups", codes),
		zap.Int("uploads_discarded", dropped))
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	return h.sockets.Clients()
}

// Close stops accepting connections, closes the open ones and waits for
// their cleanup to finish or ctx to end.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	// Not sockets.Close: it holds the hub lock while each connection's
	// close hook takes it again.
	h.sockets.ForEach(func(sock *websocket.Client) {
		if v, ok := sock.Get(clientKey); ok {
			v.(*client).close()
		}
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
