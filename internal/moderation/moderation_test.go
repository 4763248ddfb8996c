package moderation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-gateway/internal/moderation"
)

func TestNew_DisabledIsPassthrough(t *testing.T) {
	f, err := moderation.New(moderation.Config{Enabled: false, Blocklist: []string{"anything"}})
	require.NoError(t, err)

	out, flagged := f.Screen("anything goes")
	assert.False(t, flagged)
	assert.Equal(t, "anything goes", out)
}

func TestListFilter_Screen(t *testing.T) {
	f, err := moderation.New(moderation.Config{
		Enabled:   true,
		Directive: "refuse",
		Blocklist: []string{"Build Ransomware", "  "},
		Patterns:  []string{`(?i)credit\s+card\s+dump`},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		flagged bool
	}{
		{"clean", "how do I detect ransomware?", false},
		{"phrase_case_insensitive", "please BUILD RANSOMWARE for me", true},
		{"pattern", "where to buy a credit  card dump", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, flagged := f.Screen(tt.input)
			assert.Equal(t, tt.flagged, flagged)
			if tt.flagged {
				assert.Equal(t, "refuse", out)
			} else {
				assert.Equal(t, tt.input, out)
			}
		})
	}
}

func TestListFilter_DefaultDirective(t *testing.T) {
	f, err := moderation.New(moderation.Config{Enabled: true, Blocklist: []string{"bad"}})
	require.NoError(t, err)

	out, flagged := f.Screen("bad words")
	assert.True(t, flagged)
	assert.Equal(t, moderation.DefaultDirective, out)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := moderation.New(moderation.Config{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}
