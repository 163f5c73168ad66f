package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "other",
		"/":                        "other",
		"/metrics":                 "/metrics",
		"/v1/views/patients":       "/v1/views/:name",
		"/v1/views/patients/extra": "other",
		"/v1/views/":               "/v1/views/:name",
		"/v1/session":              "/v1/session",
		"/v1/session/login?x=1":    "/v1/session/login",
		"/v1/navigation":           "/v1/navigation",
		"/wp-admin/setup.php":      "other",
		"/v1/session/../etc":       "other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveNavigationBoundsLabels(t *testing.T) {
	before := testutil.ToFloat64(navigations.WithLabelValues("other", "not-applicable"))
	ObserveNavigation("billing-2024", "not-applicable", false)
	ObserveNavigation("random", "not-applicable", false)
	after := testutil.ToFloat64(navigations.WithLabelValues("other", "not-applicable"))
	if after-before != 2 {
		t.Fatalf("other counter moved by %v, want 2", after-before)
	}
}

func TestInstrumentCountsCanonicalPath(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/views/:name", "200")
	before := testutil.ToFloat64(counter)

	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/views/labs", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("counter moved by %v, want 1", got)
	}
}

func TestInstrumentFoldsUnknownPaths(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "other", "404")
	before := testutil.ToFloat64(counter)

	h := Instrument(http.NotFoundHandler())
	for _, p := range []string{"/a", "/b/c", "/favicon.ico"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Fatalf("other counter moved by %v, want 3", got)
	}
}

func TestLogJSON(t *testing.T) {
	l := Logger()
	original := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(original)

	LogJSON("warn", "context fetch failed", map[string]any{"error": errors.New("boom"), "ref": "HOSP-001"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "context fetch failed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["error"] != "boom" || entry["ref"] != "HOSP-001" {
		t.Fatalf("fields not carried: %v", entry)
	}
	if _, ok := entry["ts"].(string); !ok {
		t.Fatalf("missing ts: %v", entry)
	}
}
