package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/storage"
)

type fakeCatalog struct {
	items []domain.CatalogItem
}

func (c *fakeCatalog) ListImageItems(ctx context.Context, exclude map[int64]struct{}) ([]domain.CatalogItem, error) {
	var out []domain.CatalogItem
	for _, item := range c.items {
		if _, skip := exclude[item.ID]; !skip {
			out = append(out, item)
		}
	}
	return out, nil
}

// fakeDescriber answers by "url|prompt". failOn makes one url fail as if the
// model endpoint went away.
type fakeDescriber struct {
	mu      sync.Mutex
	answers map[string]string
	failOn  string
	calls   []string
}

func (d *fakeDescriber) Describe(ctx context.Context, imageURL string, prompt domain.Prompt) (string, error) {
	if !prompt.Enabled() {
		return "", nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := imageURL + "|" + prompt.Text()
	d.calls = append(d.calls, key)
	if imageURL == d.failOn {
		return "", fmt.Errorf("%w: HTTP 500", ErrModelUnavailable)
	}
	return d.answers[key], nil
}

type fakePublisher struct {
	key  string
	body string
	err  error
}

func (p *fakePublisher) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if p.err != nil {
		return p.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return err
	}
	p.key = key
	p.body = buf.String()
	return nil
}

var altAndTitle = domain.NewPromptSet(map[domain.Kind]domain.Prompt{
	domain.KindAlt:   domain.TemplatePrompt("alt?"),
	domain.KindTitle: domain.TemplatePrompt("title?"),
})

func twoItemCatalog() *fakeCatalog {
	return &fakeCatalog{items: []domain.CatalogItem{
		{ID: 101, SourceURL: "url101"},
		{ID: 102, SourceURL: "url102"},
	}}
}

func bicycleAnswers() map[string]string {
	return map[string]string{
		"url101|alt?":   "A red bicycle",
		"url101|title?": "",
		"url102|alt?":   "Blue sky",
		"url102|title?": "Sunset",
	}
}

func readRows(t *testing.T, s *checkpoint.Store) []domain.ResultRow {
	t.Helper()
	var rows []domain.ResultRow
	if err := s.Stream(func(row domain.ResultRow) error {
		rows = append(rows, row)
		return nil
	}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return rows
}

func TestRunWritesRowsWithContent(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	model := &fakeDescriber{answers: bicycleAnswers()}
	runner := NewRunner(store, twoItemCatalog(), model, &RunnerConfig{Prompts: altAndTitle}, nil)

	if runner.State() != StateIdle {
		t.Errorf("initial state = %s, want idle", runner.State())
	}
	stats, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.State() != StateDrained {
		t.Errorf("state = %s, want drained", runner.State())
	}
	if stats.Written != 2 || stats.Empty != 0 || stats.Pending != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rows := readRows(t, store)
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want 2", rows)
	}
	if rows[0].ItemID != 101 || rows[0].Field(domain.KindAlt) != "A red bicycle" || rows[0].Field(domain.KindTitle) != "" || rows[0].SourceURL != "url101" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].ItemID != 102 || rows[1].Field(domain.KindAlt) != "Blue sky" || rows[1].Field(domain.KindTitle) != "Sunset" {
		t.Errorf("row 1 = %+v", rows[1])
	}

	// Kinds are asked in declared order, disabled kinds never reach the model
	want := []string{"url101|alt?", "url101|title?", "url102|alt?", "url102|title?"}
	if strings.Join(model.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", model.calls, want)
	}

	processed, err := store.ScanProcessed()
	if err != nil {
		t.Fatalf("ScanProcessed: %v", err)
	}
	if len(processed) != 2 {
		t.Errorf("processed = %v, want {101, 102}", processed)
	}
}

func TestRunResumesAfterFatalFailure(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	catalog := twoItemCatalog()
	model := &fakeDescriber{answers: bicycleAnswers(), failOn: "url102"}

	runner := NewRunner(store, catalog, model, &RunnerConfig{Prompts: altAndTitle}, nil)
	_, err := runner.Run(context.Background())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if runner.State() == StateDrained {
		t.Errorf("state = drained after a fatal failure")
	}

	rows := readRows(t, store)
	if len(rows) != 1 || rows[0].ItemID != 101 {
		t.Fatalf("rows = %+v, want only 101", rows)
	}

	model.failOn = ""
	model.calls = nil
	stats, err := NewRunner(store, catalog, model, &RunnerConfig{Prompts: altAndTitle}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.AlreadyProcessed != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v, want 1 processed and 1 pending", stats)
	}
	for _, call := range model.calls {
		if strings.HasPrefix(call, "url101|") {
			t.Errorf("item 101 was annotated again: %v", model.calls)
		}
	}
	if rows := readRows(t, store); len(rows) != 2 {
		t.Errorf("rows after resume = %d, want 2", len(rows))
	}
}

func TestRunIsIdempotentWhenDrained(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	model := &fakeDescriber{answers: bicycleAnswers()}
	cfg := &RunnerConfig{Prompts: altAndTitle}

	if _, err := NewRunner(store, twoItemCatalog(), model, cfg, nil).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	model.calls = nil

	stats, err := NewRunner(store, twoItemCatalog(), model, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Written != 0 || len(model.calls) != 0 {
		t.Errorf("second run wrote %d rows with calls %v", stats.Written, model.calls)
	}
	if rows := readRows(t, store); len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestRunReoffersEmptyItems(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	catalog := &fakeCatalog{items: []domain.CatalogItem{{ID: 7, SourceURL: "url7"}}}
	model := &fakeDescriber{answers: map[string]string{}}
	cfg := &RunnerConfig{Prompts: altAndTitle}

	stats, err := NewRunner(store, catalog, model, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Written != 0 || stats.Empty != 1 {
		t.Errorf("stats = %+v, want one empty item", stats)
	}
	if rows := readRows(t, store); len(rows) != 0 {
		t.Errorf("rows = %+v, want none", rows)
	}

	model.answers["url7|alt?"] = "A cat"
	stats, err = NewRunner(store, catalog, model, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Pending != 1 || stats.Written != 1 {
		t.Errorf("stats = %+v, want the empty item offered again", stats)
	}
}

func TestRunSkipsRowsAlreadyInCheckpoint(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	w, err := store.OpenWriter()
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	row := domain.NewResultRow(102, "url102")
	row.Fields[domain.KindCaption] = "hand edited"
	if err := w.Append(row); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	model := &fakeDescriber{answers: bicycleAnswers()}
	stats, err := NewRunner(store, twoItemCatalog(), model, &RunnerConfig{Prompts: altAndTitle}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.AlreadyProcessed != 1 || stats.Written != 1 {
		t.Errorf("stats = %+v", stats)
	}
	rows := readRows(t, store)
	if len(rows) != 2 || rows[0].ItemID != 102 || rows[1].ItemID != 101 {
		t.Errorf("rows = %+v, want existing 102 then new 101", rows)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(store, twoItemCatalog(), &fakeDescriber{answers: bicycleAnswers()}, &RunnerConfig{Prompts: altAndTitle}, nil)
	if _, err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if rows := readRows(t, store); len(rows) != 0 {
		t.Errorf("rows = %+v, want none", rows)
	}
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	unlock, err := store.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	runner := NewRunner(store, twoItemCatalog(), &fakeDescriber{}, &RunnerConfig{Prompts: altAndTitle}, nil)
	if _, err := runner.Run(context.Background()); !errors.Is(err, checkpoint.ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}

func TestRunPublishesCheckpoint(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	pub := &fakePublisher{}
	cfg := &RunnerConfig{Prompts: altAndTitle, Publisher: pub}

	if _, err := NewRunner(store, twoItemCatalog(), &fakeDescriber{answers: bicycleAnswers()}, cfg, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pub.key != "checkpoints/"+checkpoint.DefaultFileName {
		t.Errorf("key = %q", pub.key)
	}
	if !strings.HasPrefix(pub.body, "ID,alt,description,caption,title,URL\n") || !strings.Contains(pub.body, "Blue sky") {
		t.Errorf("published body = %q", pub.body)
	}
}

func TestRunPublishFailureOnlyWarns(t *testing.T) {
	store := checkpoint.New(t.TempDir(), checkpoint.DefaultFileName)
	cfg := &RunnerConfig{Prompts: altAndTitle, Publisher: &fakePublisher{err: storage.ErrUploadUnsupported}}

	runner := NewRunner(store, twoItemCatalog(), &fakeDescriber{answers: bicycleAnswers()}, cfg, nil)
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.State() != StateDrained {
		t.Errorf("state = %s, want drained", runner.State())
	}
}
