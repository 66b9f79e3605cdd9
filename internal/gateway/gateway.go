// Package gateway is the WebSocket transport. It admits connections, decodes
// and validates inbound frames and dispatches them to the session manager and
// the relay.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mitmlab.org/internal/auth"
	"mitmlab.org/internal/channels"
	"mitmlab.org/internal/chat"
	"mitmlab.org/internal/obs"
	"mitmlab.org/internal/relay"
	"mitmlab.org/internal/session"
)

// Inbound event names.
const (
	EventJoinRoom     = "join_room"
	EventObserverJoin = "hacker_join"
	EventAdminJoin    = "admin_join"
	EventToggle       = "toggle_mitm"
	EventSendMessage  = "send_message"
	EventForward      = "hacker_forward_message"
	EventInject       = "hacker_inject_message"
	EventReport       = "report_tampering_attempt"
)

const outcomeJoined relay.Outcome = "joined"

// Metric outcomes for frames that never reach a handler.
const (
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
)

// Sessions is the connection lifecycle the gateway drives.
type Sessions interface {
	Admit(conn session.Conn, credential string) (auth.Identity, error)
	JoinRoom(conn session.Conn, roomID string)
	JoinObserver(conn session.Conn)
	JoinAdmin(conn session.Conn)
	Disconnect(conn session.Conn)
}

// Relay is the message path the gateway dispatches to.
type Relay interface {
	Send(ctx context.Context, conn session.Conn, env chat.Envelope) relay.Result
	Forward(ctx context.Context, conn session.Conn, env chat.Envelope) relay.Result
	Inject(ctx context.Context, conn session.Conn, env chat.Envelope) relay.Result
	ReportTampering(ctx context.Context, conn session.Conn, rep relay.Report) relay.Result
	Toggle(conn session.Conn, active bool) relay.Result
}

// Options tunes the transport.
type Options struct {
	// AllowOrigin decides the browser origin check. Nil allows every origin.
	AllowOrigin     func(origin string) bool
	EventRatePerSec int
	EventRateBurst  int
	MaxMessageBytes int64
}

// Gateway serves /ws.
type Gateway struct {
	sessions Sessions
	relay    Relay
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// New wires a gateway.
func New(sessions Sessions, rl Relay, opts Options) *Gateway {
	if opts.EventRatePerSec <= 0 {
		opts.EventRatePerSec = 20
	}
	if opts.EventRateBurst <= 0 {
		opts.EventRateBurst = 2 * opts.EventRatePerSec
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 1 << 20
	}
	base, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		sessions: sessions,
		relay:    rl,
		opts:     opts,
		log:      obs.Component("gateway"),
		base:     base,
		cancel:   cancel,
		clients:  make(map[*Client]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowOrigin == nil {
				return true
			}
			return opts.AllowOrigin(r.Header.Get("Origin"))
		},
	}
	return g
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := credentialFrom(r)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c := newClient(ws, rate.NewLimiter(rate.Limit(g.opts.EventRatePerSec), g.opts.EventRateBurst))

	id, err := g.sessions.Admit(c, credential)
	if err != nil {
		return
	}
	if !g.track(c) {
		g.sessions.Disconnect(c)
		_ = c.Close()
		return
	}
	defer g.untrack(c)

	ctx, cancel := context.WithCancel(g.base)
	defer cancel()
	ctx = auth.ContextWithConnection(auth.ContextWithUser(ctx, id.Subject), c.ID())

	go c.writePump()
	c.readPump(ctx, g.opts.MaxMessageBytes, g.dispatch)

	g.sessions.Disconnect(c)
	_ = c.Close()
}

// Shutdown closes every open connection and waits for their read loops to
// finish or ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()
	g.mu.Lock()
	for c := range g.clients {
		_ = c.Close()
	}
	g.clients = nil
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) track(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clients == nil {
		return false
	}
	g.clients[c] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(c *Client) {
	g.mu.Lock()
	if g.clients != nil {
		delete(g.clients, c)
	}
	g.mu.Unlock()
	g.wg.Done()
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	f, err := channels.Decode(raw)
	if err != nil {
		obs.EventsTotal.WithLabelValues("malformed", outcomeInvalid).Inc()
		g.log.Warn().Err(err).Str("conn_id", c.ID()).Msg("malformed frame dropped")
		return
	}

	res, err := g.route(ctx, c, f)
	if err != nil {
		label := f.Event
		if !knownEvent(label) {
			label = "unknown"
		}
		obs.EventsTotal.WithLabelValues(label, outcomeInvalid).Inc()
		g.log.Warn().Err(err).Str("conn_id", c.ID()).Str("event", f.Event).Msg("frame rejected")
		return
	}
	obs.EventsTotal.WithLabelValues(f.Event, string(res.Outcome)).Inc()

	ev := g.log.Debug()
	if !res.OK() {
		ev = g.log.Warn()
	}
	ev.Str("conn_id", c.ID()).Str("event", f.Event).EmbedObject(res).Msg("event handled")
}

func (g *Gateway) route(ctx context.Context, c *Client, f channels.Frame) (relay.Result, error) {
	switch f.Event {
	case EventJoinRoom:
		room, err := decodeRoom(f.Data)
		if err != nil {
			return relay.Result{}, err
		}
		g.sessions.JoinRoom(c, room)
		return relay.Result{Outcome: outcomeJoined}, nil
	case EventObserverJoin:
		g.sessions.JoinObserver(c)
		return relay.Result{Outcome: outcomeJoined}, nil
	case EventAdminJoin:
		g.sessions.JoinAdmin(c)
		return relay.Result{Outcome: outcomeJoined}, nil
	case EventToggle:
		active, err := decodeToggle(f.Data)
		if err != nil {
			return relay.Result{}, err
		}
		return g.relay.Toggle(c, active), nil
	case EventSendMessage, EventForward, EventInject:
		env, err := decodeEnvelope(f.Data)
		if err != nil {
			return relay.Result{}, err
		}
		switch f.Event {
		case EventForward:
			return g.relay.Forward(ctx, c, env), nil
		case EventInject:
			return g.relay.Inject(ctx, c, env), nil
		default:
			return g.relay.Send(ctx, c, env), nil
		}
	case EventReport:
		rep, err := decodeReport(f.Data)
		if err != nil {
			return relay.Result{}, err
		}
		return g.relay.ReportTampering(ctx, c, rep), nil
	default:
		return relay.Result{}, errUnknownEvent
	}
}

var errUnknownEvent = errors.Join(ErrValidation, errors.New("unknown event"))

func knownEvent(name string) bool {
	switch name {
	case EventJoinRoom, EventObserverJoin, EventAdminJoin, EventToggle,
		EventSendMessage, EventForward, EventInject, EventReport:
		return true
	}
	return false
}

// credentialFrom reads the handshake token from the query string or a
// bearer Authorization header.
func credentialFrom(r *http.Request) string {
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
