package upstream

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/store"
)

// EncodingNone disables tiktoken and always uses the byte heuristic.
const EncodingNone = "none"

// perMessageOverhead approximates the role/separator tokens chat formats add.
const perMessageOverhead = 4

// TokenEstimator counts prompt tokens for logging and telemetry.
// The encoding is loaded once; if it is unavailable (offline host) or set to
// "none" the estimator falls back to roughly four bytes per token.
type TokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator for the given tiktoken encoding.
func NewTokenEstimator(encoding string) *TokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TokenEstimator{encoding: encoding}
}

func (e *TokenEstimator) load() {
	if e.encoding == EncodingNone {
		return
	}
	enc, err := tiktoken.GetEncoding(e.encoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", e.encoding).Msg("tiktoken unavailable, using byte heuristic")
		return
	}
	e.enc = enc
}

// Count returns the token count of a single string.
func (e *TokenEstimator) Count(text string) int {
	e.once.Do(e.load)
	if e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountHistory estimates the prompt size of a message list.
func (e *TokenEstimator) CountHistory(h store.History) int {
	total := 0
	for _, m := range h {
		total += perMessageOverhead + e.Count(m.Content)
	}
	return total
}
