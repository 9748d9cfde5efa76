// Package proxy implements the intercepting relay at the heart of
// xmlabridge: a fixed listening port whose connections are forwarded to a
// dynamically discovered Analysis Services instance, with database
// identifiers rewritten on the client-to-target direction so requests
// resolve against the live model.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drksbr/xmlabridge/internal/events"
	"github.com/drksbr/xmlabridge/internal/util/bytelimiter"
)

// ErrAlreadyRunning is returned by Start while a session is active. The
// caller must Stop first; the existing session is left untouched.
var ErrAlreadyRunning = errors.New("proxy already running")

// Options configures a Proxy. Logger is required; everything else has
// defaults.
type Options struct {
	Logger *slog.Logger
	Bus    *events.Bus

	// MaxPending bounds the total bytes withheld across all rewriting
	// accumulators. Zero keeps the historical unbounded behaviour.
	MaxPending int

	// ConnIDMode selects the per-connection identifier generator,
	// "uuid" (default) or "cuid".
	ConnIDMode string

	// Registerer receives the prometheus collectors. Defaults to the
	// global registerer.
	Registerer prometheus.Registerer
}

// session is the single active configuration of a running proxy. It is
// immutable once Start has returned; only the lifecycle manager may create
// or discard it.
type session struct {
	listenPort     int
	targetPort     int
	targetDatabase string
	allowRemote    bool

	listener net.Listener
	cancel   context.CancelFunc
}

// Proxy is the lifecycle manager: it owns the listening socket, the accept
// loop and the running/idle state, and spawns one relay per accepted client.
type Proxy struct {
	logger  *slog.Logger
	bus     *events.Bus
	metrics *proxyMetrics
	limiter *bytelimiter.ByteLimiter
	idGen   func() string

	mu      sync.Mutex
	session *session
}

// New constructs an idle Proxy.
func New(opts Options) (*Proxy, error) {
	logger := opts.Logger
	if logger == nil {
		return nil, errors.New("proxy requires a logger")
	}

	var idGen func() string
	switch mode := strings.ToLower(strings.TrimSpace(opts.ConnIDMode)); mode {
	case "", "uuid":
		idGen = uuid.NewString
	case "cuid":
		idGen = cuid.New
	default:
		return nil, fmt.Errorf("unsupported conn id mode %q (use uuid or cuid)", opts.ConnIDMode)
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics, err := newProxyMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		logger:  logger.With("component", "proxy"),
		bus:     opts.Bus,
		metrics: metrics,
		limiter: bytelimiter.New(opts.MaxPending),
		idGen:   idGen,
	}, nil
}

// Start binds the listening socket and launches the accept loop. It returns
// ErrAlreadyRunning while a session is active, or a wrapped bind error (port
// in use, permission denied) leaving the proxy idle. On success it returns
// immediately; relaying happens on background goroutines tied to ctx.
func (p *Proxy) Start(ctx context.Context, listenPort, targetPort int, targetDatabase string, allowRemote bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return ErrAlreadyRunning
	}

	host := "127.0.0.1"
	if allowRemote {
		host = ""
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", listenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		listenPort:     listenPort,
		targetPort:     targetPort,
		targetDatabase: targetDatabase,
		allowRemote:    allowRemote,
		listener:       ln,
		cancel:         cancel,
	}
	p.session = sess

	scope := "localhost only"
	if allowRemote {
		scope = "all interfaces"
	}
	p.logger.Info("proxy started",
		"listen", ln.Addr().String(),
		"target_port", targetPort,
		"target_database", targetDatabase,
		"scope", scope)
	p.bus.Logf("Proxy listening on port %d -> localhost:%d (database %q, %s)",
		listenPort, targetPort, targetDatabase, scope)

	go p.acceptLoop(sessCtx, sess)
	return nil
}

// Stop tears down the active session. It is idempotent: stopping an idle
// proxy is a no-op, not an error. In-flight relays observe the cancelled
// context or their closed sockets and finish on their own schedule; Stop
// does not wait for them.
func (p *Proxy) Stop() {
	p.mu.Lock()
	sess := p.session
	p.session = nil
	p.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	_ = sess.listener.Close()
	p.logger.Info("proxy stopped", "listen_port", sess.listenPort)
	p.bus.Logf("Proxy stopped")
}

// IsRunning reports whether a session is active.
func (p *Proxy) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// ListenPort returns the active session's listening port, or 0 when idle.
func (p *Proxy) ListenPort() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0
	}
	return p.session.listenPort
}

// TargetPort returns the active session's target port, or 0 when idle.
func (p *Proxy) TargetPort() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0
	}
	return p.session.targetPort
}

// TargetDatabase returns the active session's database name, or "" when idle.
func (p *Proxy) TargetDatabase() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.targetDatabase
}

// acceptLoop accepts clients until the session context is cancelled or the
// listener is closed by Stop. Accept throughput is never serialized behind
// relay completion: each client gets its own goroutine immediately.
func (p *Proxy) acceptLoop(ctx context.Context, sess *session) {
	for {
		conn, err := sess.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Warn("accept failed", "error", err)
			p.bus.Errorf("Accept failed: %v", err)
			p.metrics.acceptErrors.Inc()
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		id := p.idGen()
		p.logger.Info("client accepted", "conn", id, "remote", conn.RemoteAddr())
		p.bus.Logf("Client connected from %s", conn.RemoteAddr())

		r := &relay{
			id:       id,
			logger:   p.logger.With("conn", id),
			bus:      p.bus,
			metrics:  p.metrics,
			rewriter: newRewriter(sess.targetDatabase),
			limiter:  p.limiter,
			client:   conn,
		}
		go r.run(ctx, sess.targetPort)
	}
}
