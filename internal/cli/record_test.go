package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
)

type memRecorder struct {
	got  []archive.NewInteraction
	fail int // fail on this call, 1-based; 0 never
}

func (m *memRecorder) RecordInteraction(_ context.Context, in archive.NewInteraction) (string, error) {
	if m.fail > 0 && len(m.got)+1 == m.fail {
		return "", errors.New("disk full")
	}
	m.got = append(m.got, in)
	return "id", nil
}

func TestImportJSONL(t *testing.T) {
	input := `{"user_input":"hi","response_text":"hello there","feedback":"resonance"}

{"user_input":"why","response_text":"no","refusal":true,"timestamp":"2026-03-01T09:00:00Z"}
`
	rec := &memRecorder{}
	n, err := ImportJSONL(context.Background(), strings.NewReader(input), rec)
	if err != nil {
		t.Fatalf("ImportJSONL: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported, got %d", n)
	}
	if rec.got[0].Feedback != "resonance" || rec.got[0].ResponseText != "hello there" {
		t.Errorf("unexpected first record: %+v", rec.got[0])
	}
	if !rec.got[0].Timestamp.IsZero() {
		t.Errorf("expected zero timestamp when absent, got %v", rec.got[0].Timestamp)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !rec.got[1].Refusal || !rec.got[1].Timestamp.Equal(want) {
		t.Errorf("unexpected second record: %+v", rec.got[1])
	}
}

func TestImportJSONLMalformedLine(t *testing.T) {
	input := "{\"user_input\":\"a\",\"response_text\":\"b\"}\nnot json\n{\"user_input\":\"c\"}\n"
	rec := &memRecorder{}
	n, err := ImportJSONL(context.Background(), strings.NewReader(input), rec)
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line number in error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 imported before failure, got %d", n)
	}
}

func TestImportJSONLRecorderError(t *testing.T) {
	input := "{\"response_text\":\"a\"}\n{\"response_text\":\"b\"}\n"
	rec := &memRecorder{fail: 2}
	n, err := ImportJSONL(context.Background(), strings.NewReader(input), rec)
	if err == nil || n != 1 {
		t.Fatalf("expected failure after 1 record, got n=%d err=%v", n, err)
	}
}

func TestImportJSONLIntoArchive(t *testing.T) {
	ctx := context.Background()
	s, err := archive.NewStore(filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	input := `{"user_input":"q1","response_text":"r1","feedback":"rejection"}
{"user_input":"q2","response_text":"r2","feedback":"loved the tone"}
`
	if _, err := ImportJSONL(ctx, strings.NewReader(input), s); err != nil {
		t.Fatalf("ImportJSONL: %v", err)
	}

	ids, err := s.UnassignedIDs(ctx)
	if err != nil {
		t.Fatalf("UnassignedIDs: %v", err)
	}
	items, err := s.LoadByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("LoadByIDs: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 interactions, got %d", len(items))
	}
	tags := map[metrics.Feedback]bool{}
	for _, it := range items {
		tags[it.Feedback] = true
	}
	if !tags[metrics.FeedbackRejection] || !tags["loved the tone"] {
		t.Errorf("expected known and free-form tags, got %v", tags)
	}
}
