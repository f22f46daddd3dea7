package session

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// Query runs text as one batch on the session's connection and returns
// every tabular result set, normalized. The session lock is held until the
// results are fully read.
//
// A disconnected session fails with ErrKindNoActiveConnection whatever
// the text; an empty text on a connected session fails with
// ErrKindMissingQuery. Execution errors keep the server's message and
// leave the connection in place, except when ctx ends mid-query: the
// stream is then in an unknown state, so the handle is closed and the
// session becomes Disconnected.
func (s *Session) Query(ctx context.Context, text string) ([]database.ResultSet, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if s.conn == nil {
		return nil, errs.New(errs.ErrKindNoActiveConnection,
			"No connection has previously been established")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.ErrKindMissingQuery,
			"Requires TSQL to be set to run query on database.")
	}

	start := time.Now()
	raw, err := execute(ctx, s.conn, text)
	if err != nil {
		if ctx.Err() != nil && errs.IsTimeout(err) {
			s.drop("session dropped after cancelled query")
		}
		s.log.With().Dur("elapsed", time.Since(start)).Logger().
			WarnWith("query failed", err, nil)
		return nil, err
	}

	sets, err := database.Normalize(raw)
	if err != nil {
		s.log.WarnWith("normalizing result failed", err, nil)
		return nil, err
	}

	s.log.With().
		Int("recordsets", len(sets)).
		Dur("elapsed", time.Since(start)).
		Logger().Debug("query finished")
	return sets, nil
}

// execute sends the batch and materializes its result sets.
func execute(ctx context.Context, conn database.Conn, text string) ([]database.RawResultSet, error) {
	rows, err := conn.Query(ctx, text)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	sets, err := database.ScanResultSets(rows)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	return sets, nil
}

// classifyQueryError types a foreign error: Timeout when ctx has ended,
// QueryFailed otherwise.
func classifyQueryError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errs.KindOf(err) == errs.ErrKindUnknown {
		return errs.Wrap(errs.ErrKindTimeout, "query cancelled: "+ctx.Err().Error(), err)
	}
	return errs.Classify(errs.ErrKindQueryFailed, err)
}
