package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/database/dbtest"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = database.NewDescriptor().
	WithHost("db01").
	WithInstanceName("SQLEXPRESS").
	WithAuth("sa", "secret")

func newRegistry(t *testing.T) (*Registry, *dbtest.Connector, *dbtest.Conn) {
	t.Helper()
	conn := dbtest.NewConn()
	connector := &dbtest.Connector{Conn: conn}
	return NewRegistry(connector, defaults), connector, conn
}

func connected(t *testing.T, s *Session) bool {
	t.Helper()
	ok, err := s.IsConnected(context.Background())
	require.NoError(t, err)
	return ok
}

func TestSession_ConnectDisconnect(t *testing.T) {
	reg, connector, conn := newRegistry(t)
	ctx := context.Background()
	s := reg.Default()

	assert.False(t, connected(t, s))

	require.NoError(t, s.Connect(ctx, ""))
	assert.True(t, connected(t, s))
	assert.Equal(t, []database.Descriptor{defaults}, connector.Descriptors())

	require.NoError(t, s.Disconnect(ctx))
	assert.False(t, connected(t, s))
	assert.True(t, conn.Closed())
}

func TestSession_ConnectOverrideRouting(t *testing.T) {
	reg, connector, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Session("a").Connect(ctx, "jdbc:sqlserver://db02;databaseName=x"))
	require.NoError(t, reg.Session("b").Connect(ctx, "   "))

	assert.Equal(t, []string{"jdbc:sqlserver://db02;databaseName=x"}, connector.Strings())
	assert.Len(t, connector.Descriptors(), 1)
}

func TestSession_ConnectFailureStoresNothing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{name: "transport", err: errs.New(errs.ErrKindTransport, "TCP Error"), kind: errs.ErrKindTransport},
		{name: "handshake", err: errs.New(errs.ErrKindHandshake, "Login failed for user 'sa'."), kind: errs.ErrKindHandshake},
		{name: "bad override", err: errs.New(errs.ErrKindInvalidConnectionString, "invalid"), kind: errs.ErrKindInvalidConnectionString},
		{name: "untyped", err: errors.New("something odd"), kind: errs.ErrKindHandshake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(&dbtest.Connector{Err: tt.err}, defaults)
			s := reg.Default()

			err := s.Connect(context.Background(), "")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.False(t, connected(t, s))
		})
	}
}

func TestSession_ConnectFailureLoggedOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})
	reg := NewRegistry(&dbtest.Connector{Err: errs.New(errs.ErrKindTransport, "TCP Error")}, defaults, WithLogger(log))

	require.Error(t, reg.Default().Connect(context.Background(), ""))

	assert.Equal(t, 1, strings.Count(buf.String(), `"connect failed"`), buf.String())
	assert.Contains(t, buf.String(), `"session":"default"`)
}

func TestSession_ConnectWhileConnected(t *testing.T) {
	reg, connector, conn := newRegistry(t)
	ctx := context.Background()
	s := reg.Default()

	require.NoError(t, s.Connect(ctx, ""))

	err := s.Connect(ctx, "")
	require.Error(t, err)
	assert.True(t, errs.IsAlreadyConnected(err))
	assert.Len(t, connector.Descriptors(), 1, "no second connect attempt")
	assert.False(t, conn.Closed(), "existing handle kept")
	assert.True(t, connected(t, s))
}

func TestSession_DisconnectTwice(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()
	s := reg.Default()

	err := s.Disconnect(ctx)
	assert.True(t, errs.IsNoActiveConnection(err))

	require.NoError(t, s.Connect(ctx, ""))
	require.NoError(t, s.Disconnect(ctx))

	for i := 0; i < 3; i++ {
		err := s.Disconnect(ctx)
		require.Error(t, err)
		assert.True(t, errs.IsNoActiveConnection(err))
		assert.Equal(t, "No connection has previously been established", errs.Message(err))
	}
}

func TestSession_DisconnectCloseErrorStillDisconnects(t *testing.T) {
	reg, _, conn := newRegistry(t)
	conn.CloseErr = errors.New("broken pipe")
	ctx := context.Background()
	s := reg.Default()

	require.NoError(t, s.Connect(ctx, ""))
	require.NoError(t, s.Disconnect(ctx))
	assert.False(t, connected(t, s))
}

func TestSession_ReconnectAfterDisconnect(t *testing.T) {
	reg, connector, _ := newRegistry(t)
	ctx := context.Background()
	s := reg.Default()

	require.NoError(t, s.Connect(ctx, ""))
	require.NoError(t, s.Disconnect(ctx))
	require.NoError(t, s.Connect(ctx, ""))

	assert.True(t, connected(t, s))
	assert.Len(t, connector.Descriptors(), 2)
}

func TestSession_WaitTimesOut(t *testing.T) {
	reg, _, conn := newRegistry(t)
	ctx := context.Background()
	s := reg.Default()
	require.NoError(t, s.Connect(ctx, ""))

	release := make(chan struct{})
	started := make(chan struct{})
	conn.Respond("WAITFOR DELAY '00:01'", dbtest.Response{Hook: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := s.Query(ctx, "WAITFOR DELAY '00:01'")
		done <- err
	}()
	<-started

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := s.IsConnected(short)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))

	close(release)
	require.NoError(t, <-done)
	assert.True(t, connected(t, s))
}

func TestRegistry_NamedSessionsAreIndependent(t *testing.T) {
	reg := NewRegistry(&dbtest.Connector{}, defaults)
	ctx := context.Background()

	require.NoError(t, reg.Session("reports").Connect(ctx, ""))

	assert.True(t, connected(t, reg.Session("reports")))
	assert.False(t, connected(t, reg.Default()))
	assert.Same(t, reg.Default(), reg.Session(""))
	assert.Equal(t, []string{"default", "reports"}, reg.Names())
}

func TestRegistry_InstancesAreIndependent(t *testing.T) {
	a := NewRegistry(&dbtest.Connector{}, defaults)
	b := NewRegistry(&dbtest.Connector{}, defaults)
	ctx := context.Background()

	require.NoError(t, a.Default().Connect(ctx, ""))

	assert.True(t, connected(t, a.Default()))
	assert.False(t, connected(t, b.Default()))
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry(&dbtest.Connector{}, defaults)
	ctx := context.Background()

	require.NoError(t, reg.Session("one").Connect(ctx, ""))
	require.NoError(t, reg.Session("two").Connect(ctx, ""))
	reg.Session("idle")

	require.NoError(t, reg.Close(ctx))
	for _, name := range reg.Names() {
		assert.False(t, connected(t, reg.Session(name)), name)
	}
}

func TestSession_ConcurrentConnectsSerialize(t *testing.T) {
	reg := NewRegistry(&dbtest.Connector{}, defaults)
	s := reg.Default()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Connect(ctx, "")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errs.IsAlreadyConnected(err):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(7), rejected.Load())
}
