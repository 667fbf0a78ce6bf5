package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	ep := Chain(mw("a"), mw("b"), mw("c"))(func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	})
	if _, err := ep(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "a,b,c,endpoint" {
		t.Errorf("order = %s, want a,b,c,endpoint", got)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	failing := Logging(logger, "derive")(func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})
	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "req-1")
	if _, err := failing(ctx, nil); err == nil {
		t.Fatal("expected error to pass through")
	}
	out := buf.String()
	for _, want := range []string{"endpoint failed", "endpoint=derive", "transport=mcp", "request_id=req-1", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if tr := GetTransport(r.Context()); tr != "http" {
			t.Errorf("transport = %q, want http", tr)
		}
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Errorf("client id not reused: ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if len(seen) != 36 || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id = %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestGetTransportDefault(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("GetTransport() = %q, want http", got)
	}
}
