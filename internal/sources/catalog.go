// Package sources loads the catalog of listing sites an ingestion run visits.
package sources

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"horse.fit/event-pipeline/internal/event"
)

// Origin is one listing site. Its own URL is crawled with Prefix; Pages are
// extra listing pages on the same site with their own prefixes.
type Origin struct {
	Name    string    `koanf:"name"`
	URL     string    `koanf:"url"`
	Prefix  string    `koanf:"prefix"`
	Enabled *bool     `koanf:"enabled"`
	Status  string    `koanf:"status"`
	Pages   []SubPage `koanf:"pages"`
}

type SubPage struct {
	URL    string `koanf:"url"`
	Prefix string `koanf:"prefix"`
}

// Page is one URL to extract events from, with the attribution its records get.
type Page struct {
	Source    string
	SourceURL string
	URL       string
	Prefix    string
	Status    event.Status
}

type Catalog struct {
	Origins []Origin `koanf:"sources"`
}

// Load reads a YAML catalog from path and validates it.
func Load(path string) (*Catalog, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("sources file path is required")
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(trimmed), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load sources file %s: %w", trimmed, err)
	}

	var catalog Catalog
	if err := k.UnmarshalWithConf("", &catalog, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode sources file %s: %w", trimmed, err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", trimmed, err)
	}
	return &catalog, nil
}

func (o Origin) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

func (c *Catalog) Validate() error {
	if c == nil || len(c.Origins) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	names := map[string]struct{}{}
	prefixes := map[string]string{}
	for i, origin := range c.Origins {
		name := strings.TrimSpace(origin.Name)
		if name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, name)
		}
		names[name] = struct{}{}

		if err := validatePageURL(origin.URL); err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		if err := claimPrefix(prefixes, origin.Prefix, origin.URL); err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		switch event.Status(strings.TrimSpace(origin.Status)) {
		case "", event.StatusDraft, event.StatusPublished:
		default:
			return fmt.Errorf("source %s: status must be draft or published", name)
		}

		for j, page := range origin.Pages {
			if err := validatePageURL(page.URL); err != nil {
				return fmt.Errorf("source %s pages[%d]: %w", name, j, err)
			}
			if err := claimPrefix(prefixes, page.Prefix, page.URL); err != nil {
				return fmt.Errorf("source %s pages[%d]: %w", name, j, err)
			}
		}
	}
	return nil
}

// Pages flattens the enabled origins into the ordered list of pages to visit.
func (c *Catalog) Pages() []Page {
	var pages []Page
	for _, origin := range c.Origins {
		if !origin.IsEnabled() {
			continue
		}
		base := Page{
			Source:    strings.TrimSpace(origin.Name),
			SourceURL: strings.TrimSpace(origin.URL),
			URL:       strings.TrimSpace(origin.URL),
			Prefix:    strings.TrimSpace(origin.Prefix),
			Status:    event.Status(strings.TrimSpace(origin.Status)),
		}
		pages = append(pages, base)
		for _, sub := range origin.Pages {
			page := base
			page.URL = strings.TrimSpace(sub.URL)
			page.Prefix = strings.TrimSpace(sub.Prefix)
			pages = append(pages, page)
		}
	}
	return pages
}

func validatePageURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("url %q must be an absolute http(s) URL", trimmed)
	}
	return nil
}

func claimPrefix(prefixes map[string]string, prefix string, owner string) error {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return fmt.Errorf("prefix is required")
	}
	if previous, taken := prefixes[trimmed]; taken {
		return fmt.Errorf("prefix %q already used by %s", trimmed, previous)
	}
	prefixes[trimmed] = strings.TrimSpace(owner)
	return nil
}
