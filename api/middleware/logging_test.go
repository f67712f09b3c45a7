package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

type recordedRequest struct {
	method string
	route  string
	status int
}

type fakeObserver struct {
	seen []recordedRequest
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.seen = append(f.seen, recordedRequest{method: method, route: route, status: status})
}

func TestLoggingReportsRoutePattern(t *testing.T) {
	observer := &fakeObserver{}
	router := chi.NewRouter()
	router.Use(Logging(nil, observer))
	router.Get("/campaigns/{campaignId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/abc", nil))

	if len(observer.seen) != 1 {
		t.Fatalf("expected one observation, got %d", len(observer.seen))
	}
	got := observer.seen[0]
	if got.route != "/campaigns/{campaignId}" {
		t.Fatalf("expected route pattern, got %s", got.route)
	}
	if got.status != http.StatusTeapot || got.method != http.MethodGet {
		t.Fatalf("unexpected observation %+v", got)
	}
}

func TestLoggingDefaultsStatusToOK(t *testing.T) {
	observer := &fakeObserver{}
	handler := Logging(nil, observer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if observer.seen[0].status != http.StatusOK {
		t.Fatalf("expected 200, got %d", observer.seen[0].status)
	}
	if observer.seen[0].route != "unmatched" {
		t.Fatalf("expected unmatched route, got %s", observer.seen[0].route)
	}
}

func TestLoggingLevelFollowsStatus(t *testing.T) {
	cases := []struct {
		path   string
		status int
		level  string
		msg    string
	}{
		{path: "/api/v1/campaigns", status: http.StatusOK, level: "info", msg: "request.complete"},
		{path: "/api/v1/campaigns", status: http.StatusConflict, level: "warn", msg: "request.rejected"},
		{path: "/api/v1/campaigns", status: http.StatusBadGateway, level: "error", msg: "request.failed"},
		{path: "/health/live", status: http.StatusOK, level: "debug", msg: "request.complete"},
	}
	for _, tc := range cases {
		t.Run(tc.msg+tc.path, func(t *testing.T) {
			var buf bytes.Buffer
			logg := logger.New(logger.Options{ServiceName: "api-test", Level: logger.ParseLevel("debug"), Output: &buf})
			handler := Logging(logg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("body"))
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tc.path, nil))

			var line map[string]any
			if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if line["level"] != tc.level || line["message"] != tc.msg {
				t.Fatalf("unexpected log line %v", line)
			}
			if line["bytes"] != float64(4) {
				t.Fatalf("expected 4 bytes logged, got %v", line["bytes"])
			}
		})
	}
}
