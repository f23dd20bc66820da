// Package rubrics loads the rubric seed list (YAML/JSON) that starts a run.
package rubrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultIDPattern extracts the numeric rubric id from SPIP rubric URLs.
const DefaultIDPattern = `rubrique(\d+)`

// Entry is one rubric as written in the seed file.
type Entry struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	Enabled *bool  `json:"enabled" yaml:"enabled"`
}

type registry struct {
	Rubrics []Entry `json:"rubrics" yaml:"rubrics"`
}

// Resolver turns seed entries into rubrics, deriving missing ids from URLs.
type Resolver struct {
	idPattern *regexp.Regexp
}

// NewResolver compiles the id pattern; its first capture group (or the whole
// match when there is none) becomes the rubric id.
func NewResolver(idPattern string) (*Resolver, error) {
	if strings.TrimSpace(idPattern) == "" {
		idPattern = DefaultIDPattern
	}
	re, err := regexp.Compile(idPattern)
	if err != nil {
		return nil, fmt.Errorf("compile rubric id pattern: %w", err)
	}
	return &Resolver{idPattern: re}, nil
}

// LoadFile reads a seed file. Disabled entries are skipped; repeated URLs
// are kept since the frontier admits each URL once.
func (r *Resolver) LoadFile(path string) ([]domain.Rubric, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rubrics file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubrics file: %w", err)
	}
	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(reg.Rubrics) == 0 {
		return nil, errors.New("rubrics file contains no rubrics entries")
	}

	out := make([]domain.Rubric, 0, len(reg.Rubrics))
	for i, e := range reg.Rubrics {
		if e.Enabled != nil && !*e.Enabled {
			continue
		}
		rubric, err := r.resolve(e)
		if err != nil {
			return nil, fmt.Errorf("rubric[%d]: %w", i, err)
		}
		out = append(out, rubric)
	}
	if len(out) == 0 {
		return nil, errors.New("rubrics file has no enabled entries")
	}
	return out, nil
}

// FromURLs builds rubrics from bare listing URLs.
func (r *Resolver) FromURLs(urls []string) ([]domain.Rubric, error) {
	out := make([]domain.Rubric, 0, len(urls))
	for i, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		rubric, err := r.resolve(Entry{URL: u})
		if err != nil {
			return nil, fmt.Errorf("rubric url[%d]: %w", i, err)
		}
		out = append(out, rubric)
	}
	return out, nil
}

// DeriveID applies the id pattern to rawURL, returning "" when it does not match.
func (r *Resolver) DeriveID(rawURL string) string {
	m := r.idPattern.FindStringSubmatch(rawURL)
	switch {
	case len(m) > 1:
		return m[1]
	case len(m) == 1:
		return m[0]
	default:
		return ""
	}
}

func (r *Resolver) resolve(e Entry) (domain.Rubric, error) {
	e = sanitizeEntry(e)
	if err := validateURL(e.URL); err != nil {
		return domain.Rubric{}, err
	}
	if e.ID == "" {
		e.ID = r.DeriveID(e.URL)
	}
	if e.ID == "" {
		return domain.Rubric{}, fmt.Errorf("cannot derive rubric id from %q; set id explicitly", e.URL)
	}
	if e.Name == "" {
		e.Name = "rubrique" + e.ID
	}
	return domain.Rubric{ID: e.ID, Name: e.Name, URL: e.URL}, nil
}

func parseRegistry(data []byte, ext string) (registry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registry
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}
	return registry{}, errors.New("rubrics file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func sanitizeEntry(e Entry) Entry {
	e.ID = strings.TrimSpace(e.ID)
	e.Name = strings.TrimSpace(e.Name)
	e.URL = strings.TrimSpace(e.URL)
	return e
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
