package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/timmy/annotate/internal/api/handler"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/config"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/logger"
)

func newTestRouter(t *testing.T, rows ...domain.ResultRow) http.Handler {
	t.Helper()
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	w, err := store.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	for _, row := range rows {
		if err := w.Append(row); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	w.Close()

	return SetupRouter(store, &config.ServerConfig{Mode: "test"}, logger.GetDefault())
}

func annotated(id int64, alt, title string) domain.ResultRow {
	row := domain.NewResultRow(id, "url"+string(rune('0'+id%10)))
	if alt != "" {
		row.Fields[domain.KindAlt] = alt
	}
	if title != "" {
		row.Fields[domain.KindTitle] = title
	}
	return row
}

func get(t *testing.T, h http.Handler, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %s)", target, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	var body map[string]string
	if code := get(t, r, "/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestListAnnotationsPaginates(t *testing.T) {
	r := newTestRouter(t,
		annotated(1, "one", ""),
		annotated(2, "two", ""),
		annotated(3, "three", "Three"),
	)

	var page handler.AnnotationList
	if code := get(t, r, "/api/v1/annotations?limit=2&offset=1", &page); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if page.Total != 3 || len(page.Results) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Results[0].ID != 2 || page.Results[1].ID != 3 || page.Results[1].Title != "Three" {
		t.Errorf("results = %+v", page.Results)
	}
}

func TestGetAnnotationLastRowWins(t *testing.T) {
	r := newTestRouter(t,
		annotated(7, "first", ""),
		annotated(8, "other", ""),
		annotated(7, "edited", ""),
	)

	var a handler.Annotation
	if code := get(t, r, "/api/v1/annotations/7", &a); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if a.Alt != "edited" {
		t.Errorf("alt = %q, want edited", a.Alt)
	}

	if code := get(t, r, "/api/v1/annotations/99", nil); code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", code)
	}
	if code := get(t, r, "/api/v1/annotations/abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", code)
	}
}

func TestAnnotationStats(t *testing.T) {
	r := newTestRouter(t,
		annotated(1, "one", "One"),
		annotated(2, "two", ""),
		annotated(2, "", ""),
	)

	var stats handler.AnnotationStats
	if code := get(t, r, "/api/v1/annotations/stats", &stats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.Rows != 3 || stats.UniqueIDs != 2 || stats.EmptyRows != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByKind[domain.KindAlt] != 2 || stats.ByKind[domain.KindTitle] != 1 || stats.ByKind[domain.KindCaption] != 0 {
		t.Errorf("by kind = %v", stats.ByKind)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/annotations", nil)
	req.Header.Set("Origin", "http://review.local")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, annotated(1, "one", "One"), annotated(2, "two", ""))
	get(t, r, "/health", nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"annotate_checkpoint_rows 2",
		`annotate_checkpoint_annotations{kind="alt"} 2`,
		`annotate_checkpoint_annotations{kind="title"} 1`,
		`annotate_api_requests_total{method="GET",route="/health",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
