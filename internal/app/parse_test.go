package app

import (
	"os"
	"path/filepath"
	"testing"

	"horse.fit/event-pipeline/internal/dedup"
)

func TestCollectResponseFilesRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `[]`)
	mustWriteFile(t, filepath.Join(root, "b.txt"), `[]`)
	mustWriteFile(t, filepath.Join(root, "c.html"), `<p>x</p>`)
	mustWriteFile(t, filepath.Join(root, ".hidden.json"), `[]`)
	mustWriteFile(t, filepath.Join(root, ".cache", "d.json"), `[]`)
	mustWriteFile(t, filepath.Join(root, "nested", "e.md"), "```json\n[]\n```")

	files, err := collectResponseFiles(root, true)
	if err != nil {
		t.Fatalf("collectResponseFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 response files, got %d (%v)", len(files), files)
	}
}

func TestCollectResponseFilesNonRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `[]`)
	mustWriteFile(t, filepath.Join(root, "nested", "c.json"), `[]`)

	files, err := collectResponseFiles(root, false)
	if err != nil {
		t.Fatalf("collectResponseFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 response file, got %d (%v)", len(files), files)
	}
}

func TestCollectResponseFilesRejectsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.json")
	mustWriteFile(t, path, `[]`)
	if _, err := collectResponseFiles(path, true); err == nil {
		t.Fatalf("expected error for non-directory root")
	}
}

func TestParseResponse_DedupsAcrossFiles(t *testing.T) {
	t.Parallel()

	session := dedup.NewSession(nil, nil)
	origin := dedup.Origin{Source: "offline", Prefix: "offline"}
	result := parseResult{}

	first := "Here are the events:\n```json\n[\n" +
		`{"name":"ETHDenver","event_date":"2026-02-23","city":"Denver"},` + "\n" +
		`{"name":"RSVP","event_date":"2026-02-23"},` + "\n" +
		`{"name":"No Date"}` + "\n" +
		"]\n```"
	if err := parseResponse(first, session, origin, &result); err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}

	second := `[{"name":"ETHDenver!!","event_date":"February 23, 2026","city":"denver"},{"name":"Camp BUIDL","event_date":"2026-02-14","city":"Denver"`
	if err := parseResponse(second, session, origin, &result); err != nil {
		t.Fatalf("parseResponse failed on truncated response: %v", err)
	}

	if err := parseResponse("I could not find any events.", session, origin, &result); err == nil {
		t.Fatalf("expected parse failure for prose response")
	}

	if result.Files != 3 || result.ParseFailures != 1 {
		t.Fatalf("unexpected file counts: %+v", result)
	}
	if result.Recovered != 4 {
		t.Fatalf("expected 4 recovered objects, got %d", result.Recovered)
	}
	if result.Invalid != 2 || result.Duplicate != 1 {
		t.Fatalf("expected invalid=2 duplicate=1, got invalid=%d duplicate=%d", result.Invalid, result.Duplicate)
	}
	if len(result.Accepted) != 1 || result.Accepted[0].Event.SourceID != "offline-ethdenver-2026-02-23" {
		t.Fatalf("unexpected accepted records: %+v", result.Accepted)
	}
}

func TestRunParse_RequiresInput(t *testing.T) {
	t.Parallel()

	if code := runParse(nil); code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
