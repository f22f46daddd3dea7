// Package session owns live SQL Server connections.
//
// A Registry holds named Sessions. Each Session has one handle slot and
// moves between two states:
//
//	Disconnected --Connect--> Connected --Disconnect--> Disconnected
//
// Every operation on a Session (connect, disconnect, status, query) takes
// the session's exclusive lock for its whole duration, so protocol traffic
// on one handle never interleaves. Waiters are admitted in arrival order.
// Nothing is retried: every failure is returned to the caller.
//
// Usage:
//
//	reg := session.NewRegistry(connector, descriptor, session.WithLogger(log))
//	defer reg.Close(ctx)
//
//	s := reg.Default()
//	if err := s.Connect(ctx, ""); err != nil { ... }
//	sets, err := s.Query(ctx, "SELECT name FROM sys.databases")
package session

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
)

// DefaultName is the key of the session used when callers do not name one.
const DefaultName = "default"

// Registry is a set of named sessions sharing one Connector and one
// default Descriptor. It is safe for concurrent use.
type Registry struct {
	connector database.Connector
	defaults  database.Descriptor
	log       *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an empty registry. defaults is used by Connect calls
// that carry no connection string override.
func NewRegistry(connector database.Connector, defaults database.Descriptor, opts ...Option) *Registry {
	r := &Registry{
		connector: connector,
		defaults:  defaults,
		log:       logger.Nop(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the session called name, creating it Disconnected on
// first use. An empty name selects DefaultName.
func (r *Registry) Session(name string) *Session {
	if name == "" {
		name = DefaultName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		s = &Session{
			name:      name,
			connector: r.connector,
			defaults:  r.defaults,
			lock:      semaphore.NewWeighted(1),
			log:       r.log.With().Str("session", name).Logger(),
		}
		r.sessions[name] = s
	}
	return s
}

// Default returns the DefaultName session.
func (r *Registry) Default() *Session {
	return r.Session(DefaultName)
}

// Defaults returns the descriptor used when no override is given.
func (r *Registry) Defaults() database.Descriptor {
	return r.defaults
}

// Names returns the names of all known sessions, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects every connected session. Sessions that are already
// disconnected are skipped. The first unexpected error is returned.
func (r *Registry) Close(ctx context.Context) error {
	var first error
	for _, name := range r.Names() {
		err := r.Session(name).Disconnect(ctx)
		if err != nil && !errs.IsNoActiveConnection(err) && first == nil {
			first = err
		}
	}
	return first
}

// Session is one exclusively owned connection slot.
type Session struct {
	name      string
	connector database.Connector
	defaults  database.Descriptor
	log       *logger.Logger

	// lock guards conn. A weighted semaphore of size one is a FIFO mutex
	// whose acquisition can be abandoned through a context.
	lock *semaphore.Weighted
	conn database.Conn
}

// Name returns the session key.
func (s *Session) Name() string { return s.name }

func (s *Session) acquire(ctx context.Context) error {
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "timed out waiting for session "+s.name, err)
	}
	return nil
}

func (s *Session) release() { s.lock.Release(1) }

// Connect opens a connection and stores it in the session. An empty
// override connects with the registry's default descriptor; otherwise the
// override is parsed as a JDBC- or ADO-style connection string.
//
// A connected session rejects Connect with ErrKindAlreadyConnected; the
// caller must Disconnect first. On failure nothing is stored.
func (s *Session) Connect(ctx context.Context, override string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if s.conn != nil {
		return errs.New(errs.ErrKindAlreadyConnected,
			"session "+s.name+" is already connected; disconnect first")
	}

	var (
		conn database.Conn
		err  error
	)
	override = strings.TrimSpace(override)
	if override == "" {
		conn, err = s.connector.Connect(ctx, s.defaults)
	} else {
		conn, err = s.connector.ConnectString(ctx, override)
	}
	if err != nil {
		if ctx.Err() != nil && errs.KindOf(err) == errs.ErrKindUnknown {
			err = errs.Wrap(errs.ErrKindTimeout, "connect cancelled: "+ctx.Err().Error(), err)
		}
		err = errs.Classify(errs.ErrKindHandshake, err)
		s.log.WarnWith("connect failed", err, map[string]interface{}{
			"override": override != "",
		})
		return err
	}

	s.conn = conn
	s.log.With().Bool("override", override != "").Logger().Info("session connected")
	return nil
}

// Disconnect closes and drops the session's connection. It fails with
// ErrKindNoActiveConnection every time it is called on a disconnected
// session. A close error is logged; the session ends Disconnected anyway.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if s.conn == nil {
		return errs.New(errs.ErrKindNoActiveConnection,
			"No connection has previously been established")
	}

	s.drop("session disconnected")
	return nil
}

// IsConnected reports whether the session holds a connection. It waits
// for any in-flight operation on the session to finish.
func (s *Session) IsConnected(ctx context.Context) (bool, error) {
	if err := s.acquire(ctx); err != nil {
		return false, err
	}
	defer s.release()

	return s.conn != nil, nil
}

// drop closes the handle and empties the slot. Callers hold the lock.
func (s *Session) drop(msg string) {
	if err := s.conn.Close(); err != nil {
		s.log.WarnWith("closing connection failed", err, nil)
	}
	s.conn = nil
	s.log.Info(msg)
}
