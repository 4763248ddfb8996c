package upstream

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/sjson"

	"github.com/compresr/chat-gateway/internal/store"
)

// Params are the optional sampling parameters sent with every request.
// Nil pointers are left out of the payload.
type Params struct {
	Temperature      *float32 `yaml:"temperature"`
	TopP             *float32 `yaml:"top_p"`
	MaxTokens        int      `yaml:"max_tokens"`
	PresencePenalty  *float32 `yaml:"presence_penalty"`
	FrequencyPenalty *float32 `yaml:"frequency_penalty"`
}

// BuildRequest shapes a chat completion request from an already trimmed history.
// The history is only read; messages are copied into the request.
func BuildRequest(history store.History, model string, params Params) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(history))
	for i, m := range history {
		msgs[i] = openai.ChatCompletionMessage{Role: roleName(m.Role), Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: params.MaxTokens,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.PresencePenalty != nil {
		req.PresencePenalty = *params.PresencePenalty
	}
	if params.FrequencyPenalty != nil {
		req.FrequencyPenalty = *params.FrequencyPenalty
	}
	return req
}

func roleName(r store.Role) string {
	switch r {
	case store.RoleSystem:
		return openai.ChatMessageRoleSystem
	case store.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// Payload serialises req into the JSON body sent upstream.
//
// Explicitly configured zero values (temperature: 0) survive even though the
// request struct omits empty fields. Extra keys are sjson paths merged last,
// so provider-specific fields like OpenRouter "transforms" pass through.
func Payload(req openai.ChatCompletionRequest, params Params, extra map[string]any) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	zeros := []struct {
		path string
		val  *float32
	}{
		{"temperature", params.Temperature},
		{"top_p", params.TopP},
		{"presence_penalty", params.PresencePenalty},
		{"frequency_penalty", params.FrequencyPenalty},
	}
	for _, z := range zeros {
		if z.val != nil && *z.val == 0 {
			if body, err = sjson.SetBytes(body, z.path, 0); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", z.path, err)
			}
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "model" || k == "messages" {
			continue
		}
		if body, err = sjson.SetBytes(body, k, extra[k]); err != nil {
			return nil, fmt.Errorf("failed to set extra body field %q: %w", k, err)
		}
	}
	return body, nil
}
