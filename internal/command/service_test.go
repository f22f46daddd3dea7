package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/database/dbtest"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/session"
)

type memStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	putErr     error
	presignErr error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) PutObject(_ context.Context, bucket, key string, data []byte, _ string) (*filestore.ObjectInfo, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) PresignGetURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if m.presignErr != nil {
		return "", m.presignErr
	}
	return "https://files.local/" + bucket + "/" + key + "?sig=x", nil
}

var descriptor = database.NewDescriptor().
	WithHost("db01").
	WithDatabase("sales").
	WithApplicationName("sqlgate").
	WithAuth("reporter", "hunter2")

func newService(t *testing.T, opts ...Option) (*Service, *dbtest.Conn) {
	t.Helper()
	conn := dbtest.NewConn()
	conn.Respond("SELECT 1 AS one", dbtest.Result(
		dbtest.Set([]database.Column{{Name: "one", Kind: database.KindInt32, DatabaseType: "INT"}}, []any{int64(1)}),
	))
	reg := session.NewRegistry(&dbtest.Connector{Conn: conn}, descriptor)
	return New(reg, opts...), conn
}

func asWire(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "not a wire error: %v", err)
	return e
}

func TestService_Lifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Connect(ctx, "", ""))

	ok, err := svc.Status(ctx, "")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := svc.Query(ctx, "", "SELECT 1 AS one", QueryOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"recordsets":[[{"one":"1"}]]}`, string(res.JSON))
	assert.Nil(t, res.Archive)

	require.NoError(t, svc.Disconnect(ctx, ""))
	ok, err = svc.Status(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{session.DefaultName}, svc.Sessions())
}

func TestService_DisconnectWithoutConnection(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Disconnect(context.Background(), "")
	e := asWire(t, err)

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CONN","description":"No connection has previously been established","comment":null}`, string(b))
}

func TestService_QueryWithoutConnection(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Query(context.Background(), "", "SELECT 1 AS one", QueryOptions{})
	e := asWire(t, err)
	assert.Equal(t, TypeConnection, e.Type)
	require.NotNil(t, e.Comment)
	assert.Equal(t, commentQuery, *e.Comment)
}

func TestService_GeneralErrors(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	conn.Respond("SELECT * FORM t", dbtest.Response{Err: errors.New("Incorrect syntax near 'FORM'.")})

	require.NoError(t, svc.Connect(ctx, "", ""))

	tests := []struct {
		name string
		run  func() error
		kind errs.ErrKind
		desc string
	}{
		{
			name: "already connected",
			run:  func() error { return svc.Connect(ctx, "", "") },
			kind: errs.ErrKindAlreadyConnected,
		},
		{
			name: "missing query",
			run: func() error {
				_, err := svc.Query(ctx, "", "  ", QueryOptions{})
				return err
			},
			kind: errs.ErrKindMissingQuery,
			desc: "Requires TSQL to be set to run query on database.",
		},
		{
			name: "engine error",
			run: func() error {
				_, err := svc.Query(ctx, "", "SELECT * FORM t", QueryOptions{})
				return err
			},
			kind: errs.ErrKindQueryFailed,
			desc: "Incorrect syntax near 'FORM'.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := asWire(t, tt.run())
			assert.Equal(t, TypeGeneral, e.Type)
			assert.Equal(t, tt.kind, e.Kind)
			if tt.desc != "" {
				assert.Equal(t, tt.desc, e.Description)
			}

			b, err := json.Marshal(e)
			require.NoError(t, err)
			assert.NotContains(t, string(b), "comment")
		})
	}
}

func TestService_QueryTimeoutDropsSession(t *testing.T) {
	svc, conn := newService(t, WithQueryTimeout(20*time.Millisecond))
	ctx := context.Background()
	conn.Respond("WAITFOR DELAY '00:10'", dbtest.Response{Hook: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	require.NoError(t, svc.Connect(ctx, "", ""))

	_, err := svc.Query(ctx, "", "WAITFOR DELAY '00:10'", QueryOptions{})
	e := asWire(t, err)
	assert.Equal(t, TypeGeneral, e.Type)
	assert.Equal(t, errs.ErrKindTimeout, e.Kind)

	ok, err := svc.Status(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_DefaultConfig(t *testing.T) {
	svc, _ := newService(t)

	b, err := svc.DefaultConfig()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"host": "db01",
		"database": "sales",
		"instanceName": null,
		"applicationName": "sqlgate",
		"user": "reporter"
	}`, string(b))
	assert.NotContains(t, string(b), "hunter2")
}

func TestService_QueryArchive(t *testing.T) {
	store := newMemStore()
	svc, _ := newService(t, WithArchive(store, "results", "sqlgate", time.Minute))
	ctx := context.Background()
	require.NoError(t, svc.Connect(ctx, "reports", ""))

	res, err := svc.Query(ctx, "reports", "SELECT 1 AS one", QueryOptions{Archive: true})
	require.NoError(t, err)
	require.NotNil(t, res.Archive)

	assert.True(t, strings.HasPrefix(res.Archive.Key, "sqlgate/reports/"), res.Archive.Key)
	assert.True(t, strings.HasSuffix(res.Archive.Key, ".json"), res.Archive.Key)
	assert.Contains(t, res.Archive.URL, res.Archive.Key)
	assert.Equal(t, res.JSON, store.objects["results/"+res.Archive.Key])
}

func TestService_ArchiveFailuresDoNotFailQuery(t *testing.T) {
	t.Run("put", func(t *testing.T) {
		store := newMemStore()
		store.putErr = errs.New(errs.ErrKindPermissionDenied, "access denied")
		svc, _ := newService(t, WithArchive(store, "results", "", time.Minute))
		ctx := context.Background()
		require.NoError(t, svc.Connect(ctx, "", ""))

		res, err := svc.Query(ctx, "", "SELECT 1 AS one", QueryOptions{Archive: true})
		require.NoError(t, err)
		assert.Nil(t, res.Archive)
		assert.NotEmpty(t, res.JSON)
	})

	t.Run("presign", func(t *testing.T) {
		store := newMemStore()
		store.presignErr = errors.New("clock skew")
		svc, _ := newService(t, WithArchive(store, "results", "", time.Minute))
		ctx := context.Background()
		require.NoError(t, svc.Connect(ctx, "", ""))

		res, err := svc.Query(ctx, "", "SELECT 1 AS one", QueryOptions{Archive: true})
		require.NoError(t, err)
		require.NotNil(t, res.Archive)
		assert.NotEmpty(t, res.Archive.Key)
		assert.Empty(t, res.Archive.URL)
	})

	t.Run("not configured", func(t *testing.T) {
		svc, _ := newService(t)
		ctx := context.Background()
		require.NoError(t, svc.Connect(ctx, "", ""))

		res, err := svc.Query(ctx, "", "SELECT 1 AS one", QueryOptions{Archive: true})
		require.NoError(t, err)
		assert.Nil(t, res.Archive)
	})
}
