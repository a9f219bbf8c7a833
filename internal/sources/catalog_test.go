package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"horse.fit/event-pipeline/internal/event"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoad_FlattensPages(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, `
sources:
  - name: cryptonomads
    url: https://cryptonomads.org/events
    prefix: cryptonomads
    pages:
      - url: https://cryptonomads.org/ETHDenver2026
        prefix: cryptonomads-ethdenver
  - name: lu.ma
    url: https://lu.ma/denver
    prefix: luma
    status: draft
  - name: retired
    url: https://example.com/events
    prefix: retired
    enabled: false
`)

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	pages := catalog.Pages()
	if len(pages) != 3 {
		t.Fatalf("expected 3 enabled pages, got %+v", pages)
	}
	if pages[1].URL != "https://cryptonomads.org/ETHDenver2026" || pages[1].Prefix != "cryptonomads-ethdenver" {
		t.Fatalf("unexpected sub page: %+v", pages[1])
	}
	if pages[1].Source != "cryptonomads" || pages[1].SourceURL != "https://cryptonomads.org/events" {
		t.Fatalf("sub page must inherit origin attribution: %+v", pages[1])
	}
	if pages[2].Status != event.StatusDraft {
		t.Fatalf("expected draft status, got %q", pages[2].Status)
	}
}

func TestLoad_Rejections(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty": `sources: []`,
		"missing prefix": `
sources:
  - name: a
    url: https://a.example
`,
		"duplicate prefix": `
sources:
  - name: a
    url: https://a.example
    prefix: same
    pages:
      - url: https://a.example/b
        prefix: same
`,
		"relative url": `
sources:
  - name: a
    url: /events
    prefix: a
`,
		"bad status": `
sources:
  - name: a
    url: https://a.example
    prefix: a
    status: archived
`,
	}

	for name, body := range cases {
		if _, err := Load(writeCatalog(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "load sources file") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}
