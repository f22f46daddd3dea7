package sqlserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/koustreak/sqlgate/internal/errs"
)

// mapError translates go-mssqldb errors raised while a query runs into
// *errs.Error. Server messages are kept verbatim.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, "query cancelled: "+err.Error(), err)
	}

	if msg, ok := serverMessage(err); ok {
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}

	return errs.Verbatim(errs.ErrKindQueryFailed, err)
}

// mapConnectError classifies a failure to open a connection. dialErr is
// the last error seen by the dialer, if any.
func mapConnectError(err, dialErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, "connect cancelled: "+err.Error(), err)
	}

	if dialErr != nil || isNetworkError(err) {
		return errs.Wrap(errs.ErrKindTransport, "TCP Error: "+err.Error(), err)
	}

	if msg, ok := serverMessage(err); ok {
		return errs.Wrap(errs.ErrKindHandshake, msg, err)
	}
	return errs.Verbatim(errs.ErrKindHandshake, err)
}

// serverMessage extracts the message of a SQL Server error token.
func serverMessage(err error) (string, bool) {
	var val mssql.Error
	if errors.As(err, &val) {
		return val.Message, true
	}
	var ptr *mssql.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Message, true
	}
	return "", false
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	// The driver flattens some dial and browser failures into plain text.
	msg := err.Error()
	return strings.Contains(msg, "unable to open tcp connection") ||
		strings.Contains(msg, "SQL Server Browser")
}

// recordingDialer dials TCP and remembers the last dial failure, which
// separates socket-level errors from handshake errors.
type recordingDialer struct {
	net.Dialer

	mu      sync.Mutex
	lastErr error
}

func (d *recordingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, addr)
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return conn, err
}

func (d *recordingDialer) err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}
