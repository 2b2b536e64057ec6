package server

import (
	"net/http"

	"github.com/n0madic/go-llmbridge/internal/codec"
	"github.com/n0madic/go-llmbridge/internal/limits"
)

type supplierHealth struct {
	Name       string           `json:"name"`
	RateLimits *limits.Snapshot `json:"rate_limits,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.Suppliers.Suppliers))
	details := make([]supplierHealth, 0, len(s.Suppliers.Suppliers))
	for _, sup := range s.Suppliers.Suppliers {
		names = append(names, sup.Name)
		snap, _ := s.Limits.Get(sup.Name)
		details = append(details, supplierHealth{Name: sup.Name, RateLimits: snap})
	}
	codec.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "suppliers": names, "details": details})
}
