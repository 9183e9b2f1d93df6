package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	RootCmd.SetArgs(args)
	RootCmd.SetOut(io.Discard)
	RootCmd.SetErr(io.Discard)
	t.Cleanup(func() { RootCmd.SetArgs(nil) })
	return RootCmd.Execute()
}

func TestImportMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "import", filepath.Join(dir, "missing.jsonl"), "--db", filepath.Join(dir, "cli.db"))
	if err == nil || !strings.Contains(err.Error(), "open file") {
		t.Fatalf("err = %v, want open file error", err)
	}
}

func TestImportMalformedReturnsErrorAndKeepsEarlierLines(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.jsonl")
	body := `{"user_input":"q1","response_text":"r1"}` + "\n{not json\n"
	if err := os.WriteFile(src, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	db := filepath.Join(dir, "cli.db")

	err := execute(t, "import", src, "--db", db)
	if err == nil || !strings.Contains(err.Error(), "import") {
		t.Fatalf("err = %v, want import error", err)
	}

	// The command returned instead of exiting, so the store was closed and
	// can be reopened with the first line in it.
	s, err := archive.NewStore(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	n, err := s.CountUnassigned(context.Background())
	if err != nil {
		t.Fatalf("CountUnassigned: %v", err)
	}
	if n != 1 {
		t.Errorf("unassigned = %d, want 1", n)
	}
}

func TestRecordWritesInteraction(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	if err := execute(t, "record", "--db", db, "--input", "hi", "--response", "hello there", "--feedback", "resonance"); err != nil {
		t.Fatalf("record: %v", err)
	}

	s, err := archive.NewStore(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	n, err := s.CountUnassigned(context.Background())
	if err != nil {
		t.Fatalf("CountUnassigned: %v", err)
	}
	if n != 1 {
		t.Errorf("unassigned = %d, want 1", n)
	}
}
