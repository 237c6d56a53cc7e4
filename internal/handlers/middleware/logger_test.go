package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type loggerFunc func(string, ...any)

func (f loggerFunc) Info(msg string, v ...any) { f(msg, v...) }

type observed struct {
	method string
	route  string
	status int
}

type observerMock struct {
	calls []observed
}

func (o *observerMock) ObserveHTTPRequest(method string, route string, status int, _ time.Duration) {
	o.calls = append(o.calls, observed{method: method, route: route, status: status})
}

func TestLoggerMiddleware(t *testing.T) {
	called := 0
	var msg string
	var args []any

	logger := loggerFunc(func(m string, v ...any) {
		called++
		msg = m
		args = v
	})
	observer := &observerMock{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /test/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, err := w.Write([]byte("hi"))
		require.NoError(t, err, "should write response")
	})

	srv := httptest.NewServer(LoggerMiddleware(logger, observer)(mux))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/test/1")
	require.NoError(t, err, "should make request to test server")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	require.Equalf(t, http.StatusTeapot, resp.StatusCode, "should return status Teapot. Resp: %s", string(body))
	require.Equal(t, "hi", string(body), "should return 'hi' in response")

	require.Equal(t, 1, called, "logger should be called once")
	require.Equal(t, "got HTTP request", msg)
	require.Len(t, args, 12, "logger should log 12 fields")
	require.Equal(t, []any{"method", "GET", "uri", "/test/1", "route", "GET /test/{id}"}, args[:6])
	require.Equal(t, "duration", args[6])
	require.Equal(t, "status", args[8])
	require.Equal(t, http.StatusTeapot, args[9])
	require.Equal(t, "size", args[10])
	require.Equal(t, 2, args[11], "size should be 2 (length of 'hi')")

	require.Equal(t, []observed{{method: "GET", route: "GET /test/{id}", status: http.StatusTeapot}}, observer.calls)

	t.Run("unmatched route", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/nope")
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "unmatched", observer.calls[len(observer.calls)-1].route)
	})
}
