// Package session derives stable session ids for requests whose client did
// not supply one, so an upstream can reuse its prompt cache across turns.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/n0madic/go-llmbridge/internal/types"
)

// DefaultSize is the number of conversation prefixes remembered.
const DefaultSize = 10000

// Cache maps conversation fingerprints to session ids. It is safe for
// concurrent use.
type Cache struct {
	ids *lru.Cache[string, string]
}

// NewCache creates a cache holding up to size fingerprints.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c, _ := lru.New[string, string](size)
	return &Cache{ids: c}
}

// Resolve returns req.SessionID when set. Otherwise it returns the id bound to
// the request's system text and first user message, minting one on first use.
// Later turns of the same conversation share that prefix and so the id.
func (c *Cache) Resolve(req *types.CanonicalRequest) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	fp := fingerprint(req)
	if sid, ok := c.ids.Get(fp); ok {
		return sid
	}
	sid := uuid.NewString()
	if prev, ok, _ := c.ids.PeekOrAdd(fp, sid); ok {
		return prev
	}
	return sid
}

// Len reports the number of remembered fingerprints.
func (c *Cache) Len() int {
	return c.ids.Len()
}

type prefix struct {
	System    string   `json:"system,omitempty"`
	FirstUser []string `json:"first_user,omitempty"`
}

func fingerprint(req *types.CanonicalRequest) string {
	p := prefix{System: req.System.Text, FirstUser: firstUserParts(req.Messages)}
	data, _ := json.Marshal(p)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// firstUserParts returns the text and image parts of the first user message
// that has any.
func firstUserParts(msgs []types.CanonicalMessage) []string {
	for _, m := range msgs {
		if m.Role != types.RoleUser {
			continue
		}
		var parts []string
		for _, b := range m.Content.Blocks {
			switch b.Type {
			case types.BlockText:
				if b.Text != "" {
					parts = append(parts, "text:"+b.Text)
				}
			case types.BlockImage:
				if len(b.Source) > 0 {
					src, _ := json.Marshal(b.Source)
					parts = append(parts, "image:"+string(src))
				}
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return nil
}
