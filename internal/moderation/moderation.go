// Package moderation screens user input before it reaches the model.
//
// A flagged message is not rejected. Its content is swapped for a fixed
// directive so the model answers with a refusal in its own voice and the
// conversation shape stays unchanged.
package moderation

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultDirective replaces flagged user content.
const DefaultDirective = "The user sent a message that was blocked by the content filter. " +
	"Politely decline to help with it and offer to assist with something else."

// Config contains content filter settings.
type Config struct {
	Enabled   bool     `yaml:"enabled"`
	Directive string   `yaml:"directive"` // Replacement for flagged content
	Blocklist []string `yaml:"blocklist"` // Case-insensitive phrases
	Patterns  []string `yaml:"patterns"`  // Regular expressions
}

// Validate compiles the patterns once so bad expressions fail at startup.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	_, err := New(*c)
	return err
}

// Filter decides whether input must be replaced.
type Filter interface {
	// Screen returns the content to use and whether it was flagged.
	Screen(content string) (string, bool)
}

// Passthrough never flags anything.
type Passthrough struct{}

// Screen returns content unchanged.
func (Passthrough) Screen(content string) (string, bool) { return content, false }

// ListFilter flags content containing a blocklisted phrase or matching a pattern.
type ListFilter struct {
	directive string
	phrases   []string
	patterns  []*regexp.Regexp
}

// New builds the filter described by cfg.
func New(cfg Config) (Filter, error) {
	if !cfg.Enabled {
		return Passthrough{}, nil
	}

	f := &ListFilter{directive: cfg.Directive}
	if f.directive == "" {
		f.directive = DefaultDirective
	}
	for _, p := range cfg.Blocklist {
		if p = strings.TrimSpace(p); p != "" {
			f.phrases = append(f.phrases, strings.ToLower(p))
		}
	}
	for _, expr := range cfg.Patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid moderation pattern %q: %w", expr, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Screen implements Filter.
func (f *ListFilter) Screen(content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, p := range f.phrases {
		if strings.Contains(lower, p) {
			return f.directive, true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(content) {
			return f.directive, true
		}
	}
	return content, false
}
