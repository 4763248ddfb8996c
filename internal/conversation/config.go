package conversation

import (
	"fmt"
	"sort"

	"github.com/compresr/chat-gateway/internal/store"
)

// DefaultGreeting is returned when a conversation is opened explicitly.
const DefaultGreeting = "Hello! I'm your threat intelligence assistant. How can I help you today?"

// BuiltinPrompts are the system prompt variants shipped with the gateway.
// Config may add to or override them by name.
var BuiltinPrompts = map[string]string{
	"threat_intel": "You are ThreatIntel AI, a cybersecurity assistant. Answer questions about threats, " +
		"vulnerabilities, indicators of compromise and defensive practice. Be precise and cite CVE or " +
		"MITRE ATT&CK identifiers when relevant. Refuse to help with building malware or attacking systems " +
		"you are not authorised to test.",
	"concise": "You are ThreatIntel AI. Reply in at most three short sentences. Stay on cybersecurity topics " +
		"and say so politely when a question is out of scope.",
	"general": "You are a helpful AI assistant. Please respond to the user's request accurately and concisely.",
}

// Config contains conversation state settings.
type Config struct {
	Prompt             string            `yaml:"prompt"`              // Name of the prompt variant
	Prompts            map[string]string `yaml:"prompts"`             // Extra or overriding variants
	SystemPrompt       string            `yaml:"system_prompt"`       // Literal prompt, wins over Prompt
	Greeting           string            `yaml:"greeting"`            // Returned by NewConversation
	Window             Window            `yaml:"window"`              // Per-request send window
	HardCap            store.Cap         `yaml:"hard_cap"`            // Resident size bound
	SerializeExchanges bool              `yaml:"serialize_exchanges"` // One exchange at a time per id
}

// ResolvePrompt returns the system prompt text selected by the config.
func (c *Config) ResolvePrompt() (string, error) {
	if c.SystemPrompt != "" {
		return c.SystemPrompt, nil
	}
	if c.Prompt == "" {
		return "", fmt.Errorf("conversation.prompt or conversation.system_prompt is required")
	}
	if p, ok := c.Prompts[c.Prompt]; ok && p != "" {
		return p, nil
	}
	if p, ok := BuiltinPrompts[c.Prompt]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown conversation.prompt %q (available: %v)", c.Prompt, c.PromptNames())
}

// PromptNames lists every selectable variant.
func (c *Config) PromptNames() []string {
	seen := make(map[string]bool)
	for name := range BuiltinPrompts {
		seen[name] = true
	}
	for name := range c.Prompts {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the conversation settings.
func (c *Config) Validate() error {
	if _, err := c.ResolvePrompt(); err != nil {
		return err
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("conversation.%w", err)
	}
	if err := c.HardCap.Validate(); err != nil {
		return fmt.Errorf("conversation.%w", err)
	}
	if c.HardCap.Max != 0 && c.HardCap.Max < c.Window.MaxTotal {
		return fmt.Errorf("conversation.hard_cap.max (%d) must not be below window.max_total (%d)",
			c.HardCap.Max, c.Window.MaxTotal)
	}
	return nil
}
