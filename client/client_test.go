package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sxyafiq/snowflaked/api"
	"github.com/sxyafiq/snowflaked/snowflake"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// net/http keeps idle connections of http.DefaultClient alive.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, u := range []string{"ftp://example.com", "::nope", "localhost:8080"} {
		_, err := New(u)
		assert.Error(t, err, u)
	}
}

func TestClient_Snowflake(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/snowflake", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"snowflake":"1234567890123456789"}`)
	})

	id, err := c.Snowflake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1234567890123456789), id)
}

func TestClient_RemoteErrors(t *testing.T) {
	tests := []struct {
		kind   string
		status int
		want   error
	}{
		{"sequence_overflow", http.StatusInternalServerError, snowflake.ErrSequenceOverflow},
		{"clock_regression", http.StatusInternalServerError, snowflake.ErrClockRegression},
		{"retries_exhausted", http.StatusInternalServerError, snowflake.ErrRetriesExhausted},
		{"queue_full", http.StatusServiceUnavailable, snowflake.ErrQueueFull},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"kind":"`+tt.kind+`","message":"nope"}}`)
			})

			_, err := c.Snowflake(context.Background())
			require.ErrorIs(t, err, tt.want)

			var remote *api.RemoteError
			require.True(t, errors.As(err, &remote))
			var transport *TransportError
			assert.False(t, errors.As(err, &transport), "remote errors are not transport errors")
		})
	}
}

func TestClient_TransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"snowflake":`)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "plain text 404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "status without envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, `{}`)
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "empty envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, tt.handler)

			_, err := c.Snowflake(context.Background())
			var transport *TransportError
			require.True(t, errors.As(err, &transport), "got %T: %v", err, err)
			assert.Equal(t, tt.wantStatus, transport.StatusCode)
			assert.Equal(t, snowflake.KindUnknown, snowflake.KindOf(err))
		})
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = c.Snowflake(context.Background())

	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	assert.Zero(t, transport.StatusCode)
	assert.Contains(t, err.Error(), "snowflake")
}

func TestClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Snowflake(ctx)

	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Decode(t *testing.T) {
	id := snowflake.LayoutDefault.Pack(1500, 42, 9)
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/snowflake/"+id.Base62(), r.URL.Path)
		assert.Equal(t, "base62", r.URL.Query().Get("format"))
		_ = api.Encode(w, api.Response{Components: api.NewComponents(id, snowflake.LayoutDefault, snowflake.Epoch)})
	})

	comp, err := c.Decode(context.Background(), id.Base62(), snowflake.FormatBase62)
	require.NoError(t, err)
	assert.Equal(t, id, comp.ID)
	assert.Equal(t, int64(42), comp.NodeID)
	assert.Equal(t, int64(9), comp.Sequence)
}

func TestClient_DecodeRemoteError(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = api.Encode(w, api.NewErrorResponse(snowflake.ErrInvalidEncoding))
	})

	_, err := c.Decode(context.Background(), "!!", "")
	var remote *api.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, snowflake.KindUnknown, remote.Kind)
}

func TestEndpoint_KeepsBasePath(t *testing.T) {
	c, err := New("http://example.com/ids/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/ids/v1/snowflake", c.endpoint("v1", "snowflake"))
	assert.Equal(t, "http://example.com/ids/v1/snowflake/a%2Fb", c.endpoint("v1", "snowflake", "a/b"))
}
