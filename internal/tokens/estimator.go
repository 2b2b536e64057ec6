// Package tokens estimates input token counts for count_tokens and for
// stream usage fallbacks.
package tokens

import (
	"crypto/sha256"
	"encoding/json"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/n0madic/go-llmbridge/internal/types"
)

// DefaultEncoding matches the current Responses model family.
const DefaultEncoding = "o200k_base"

// Per-item framing overheads, in characters for the heuristic path.
const (
	messageOverhead = 8
	blockOverhead   = 4
	toolOverhead    = 12
)

// Estimator counts tokens with a BPE encoding, caching per-segment counts.
// When the encoding cannot be loaded it falls back to one token per four
// characters.
type Estimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	cache    *lru.Cache[[sha256.Size]byte, int]
}

// New creates an estimator. cacheSize <= 0 disables caching.
func New(encoding string, cacheSize int) *Estimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	e := &Estimator{encoding: encoding}
	if cacheSize > 0 {
		e.cache, _ = lru.New[[sha256.Size]byte, int](cacheSize)
	}
	return e
}

// NewHeuristic creates an estimator that never loads BPE tables.
func NewHeuristic(cacheSize int) *Estimator {
	e := New("", cacheSize)
	e.once.Do(func() {})
	return e
}

func (e *Estimator) load() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			log.Warn().Err(err).Str("encoding", e.encoding).Msg("tokenizer unavailable, using character estimate")
			return
		}
		e.enc = enc
	})
}

// Count returns the token count of one text segment.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	var key [sha256.Size]byte
	if e.cache != nil {
		key = sha256.Sum256([]byte(text))
		if n, ok := e.cache.Get(key); ok {
			return n
		}
	}
	e.load()
	var n int
	if e.enc != nil {
		n = len(e.enc.Encode(text, nil, nil))
	} else {
		n = heuristic(utf8.RuneCountInString(text))
	}
	if e.cache != nil {
		e.cache.Add(key, n)
	}
	return n
}

// EstimateRequest counts system text, message blocks and tool definitions
// of a canonical request. The result is at least 1.
func (e *Estimator) EstimateRequest(req *types.CanonicalRequest) int {
	if req == nil {
		return 1
	}
	total := e.Count(req.System.Text)
	for _, msg := range req.Messages {
		total += overhead(messageOverhead) + e.Count(msg.Role)
		for _, b := range msg.Content.Blocks {
			total += overhead(blockOverhead)
			switch b.Type {
			case types.BlockText:
				total += e.Count(b.Text)
			case types.BlockToolUse:
				total += e.Count(b.Name) + e.Count(string(b.Input))
			case types.BlockToolResult:
				total += e.Count(b.ToolUseID) + e.Count(types.JoinTextFragments(b.Content))
			}
		}
	}
	for _, t := range req.Tools {
		total += overhead(toolOverhead) + e.Count(t.Name) + e.Count(t.Description)
		if t.InputSchema != nil {
			if raw, err := json.Marshal(t.InputSchema); err == nil {
				total += e.Count(string(raw))
			}
		}
	}
	if total < 1 {
		return 1
	}
	return total
}

func overhead(chars int) int {
	return heuristic(chars)
}

func heuristic(chars int) int {
	return (chars + 3) / 4
}
