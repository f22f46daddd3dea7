// Package command exposes the session operations to a host as discrete
// commands. Every failure leaves this package as an *Error, the two-kind
// wire payload (GEN or CONN); nothing below it knows about the wire shape.
//
// Usage:
//
//	svc := command.New(registry, command.WithQueryTimeout(30*time.Second))
//	if err := svc.Connect(ctx, "", ""); err != nil { ... }
//	res, err := svc.Query(ctx, "", "SELECT 1 AS one", command.QueryOptions{})
//	fmt.Println(string(res.JSON)) // {"recordsets":[[{"one":"1"}]]}
package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/session"
)

// commentQuery is attached to the CONN error of a query on a disconnected
// session.
const commentQuery = "Connect to a database before running a query."

// Service runs commands against a session registry.
type Service struct {
	registry     *session.Registry
	archive      *archiver
	queryTimeout time.Duration
	log          *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for command events.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithQueryTimeout bounds each query. Zero means no bound beyond the
// caller's context.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.queryTimeout = d }
}

// WithArchive enables archiving of query results into bucket. Keys are
// <prefix>/<session>/<uuid>.json; a positive ttl also presigns a download URL.
func WithArchive(store filestore.Store, bucket, prefix string, ttl time.Duration) Option {
	return func(s *Service) {
		s.archive = &archiver{store: store, bucket: bucket, prefix: prefix, ttl: ttl}
	}
}

// New returns a Service over registry.
func New(registry *session.Registry, opts ...Option) *Service {
	s := &Service{registry: registry, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a connection for the named session. An empty override
// uses the default descriptor.
func (s *Service) Connect(ctx context.Context, name, override string) error {
	err := s.registry.Session(name).Connect(ctx, override)
	return wireError(err, "")
}

// Disconnect closes the named session's connection.
func (s *Service) Disconnect(ctx context.Context, name string) error {
	err := s.registry.Session(name).Disconnect(ctx)
	return wireError(err, "")
}

// Status reports whether the named session is connected.
func (s *Service) Status(ctx context.Context, name string) (bool, error) {
	ok, err := s.registry.Session(name).IsConnected(ctx)
	return ok, wireError(err, "")
}

// Sessions lists the known session names.
func (s *Service) Sessions() []string {
	return s.registry.Names()
}

// DefaultConfig returns the default descriptor without its password.
func (s *Service) DefaultConfig() ([]byte, error) {
	b, err := json.Marshal(s.registry.Defaults().Public())
	return b, wireError(err, "")
}

// QueryOptions tunes a single Query.
type QueryOptions struct {
	// Archive stores the result JSON in the configured archive.
	Archive bool
}

// QueryResult is the outcome of a successful Query.
type QueryResult struct {
	// JSON is {"recordsets":[...]}.
	JSON []byte
	// Archive is set when the result was archived.
	Archive *ArchiveRef
}

// Query runs tsql on the named session. Archive failures are logged and
// never fail the query.
func (s *Service) Query(ctx context.Context, name, tsql string, opts QueryOptions) (*QueryResult, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	sess := s.registry.Session(name)
	sets, err := sess.Query(ctx, tsql)
	if err != nil {
		return nil, wireError(err, commentQuery)
	}

	body, err := database.EncodeRecordsets(sets)
	if err != nil {
		return nil, wireError(err, "")
	}

	res := &QueryResult{JSON: body}
	if opts.Archive {
		res.Archive = s.archiveResult(ctx, sess.Name(), body)
	}
	return res, nil
}

func (s *Service) archiveResult(ctx context.Context, name string, body []byte) *ArchiveRef {
	log := logger.FromContextOr(ctx, s.log)
	if s.archive == nil {
		log.Debug("archive requested but not configured")
		return nil
	}

	ref, err := s.archive.save(ctx, name, body)
	if err != nil {
		log.WarnWith("archiving query result failed", err, map[string]interface{}{
			"session": name,
		})
	}
	if ref != nil {
		log.With().Str("session", name).Str("key", ref.Key).Logger().Info("query result archived")
	}
	return ref
}

// wireError keeps a nil error untyped nil.
func wireError(err error, comment string) error {
	if err == nil {
		return nil
	}
	return FromError(err, comment)
}
