// Package signal supplies ranked trade candidates to the proposal engine.
// Ranking is heuristic plumbing; no probability estimation happens here.
package signal

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atmx/sentinel/internal/contract"
	"github.com/atmx/sentinel/internal/model"
)

// Source returns candidates ranked best first for the given horizon.
// Sources may pre-filter by horizon; the engine filters again regardless.
type Source interface {
	Candidates(ctx context.Context, horizon time.Duration) ([]model.Candidate, error)
}

// CandidateDoc is the YAML form of a candidate. closes_in, when set, is
// resolved against the clock at read time, so scenario files do not go stale.
type CandidateDoc struct {
	model.Candidate `yaml:",inline"`
	ClosesIn        string `yaml:"closes_in,omitempty"`
}

// Static serves a fixed candidate list in the order given.
type Static struct {
	mu      sync.RWMutex
	entries []entry
	now     func() time.Time
}

type entry struct {
	cand     model.Candidate
	closesIn time.Duration
}

// NewStatic serves cands as is.
func NewStatic(cands []model.Candidate) *Static {
	s := &Static{now: func() time.Time { return time.Now().UTC() }}
	for _, c := range cands {
		s.entries = append(s.entries, entry{cand: c})
	}
	return s
}

// FromDocs builds a source from YAML candidate documents.
func FromDocs(docs []CandidateDoc) (*Static, error) {
	s := NewStatic(nil)
	for i, d := range docs {
		e := entry{cand: d.Candidate}
		if d.ClosesIn != "" {
			dur, err := time.ParseDuration(d.ClosesIn)
			if err != nil {
				return nil, fmt.Errorf("signal: candidate %d (%s): closes_in: %w", i, d.Ticker, err)
			}
			e.closesIn = dur
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// LoadFile reads a YAML file with a top-level candidates list.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signal: read %s: %w", path, err)
	}
	var doc struct {
		Candidates []CandidateDoc `yaml:"candidates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("signal: parse %s: %w", path, err)
	}
	return FromDocs(doc.Candidates)
}

// Replace swaps the served list.
func (s *Static) Replace(cands []model.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
	for _, c := range cands {
		s.entries = append(s.entries, entry{cand: c})
	}
}

func (s *Static) Candidates(_ context.Context, _ time.Duration) ([]model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]model.Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		c := e.cand
		if e.closesIn != 0 {
			c.CloseTime = now.Add(e.closesIn)
		}
		out = append(out, c)
	}
	return out, nil
}

// Filtered narrows another source to tickers starting with one of prefixes.
type Filtered struct {
	src      Source
	prefixes []string
}

// WithPrefixes wraps src. With no prefixes it returns src unchanged.
func WithPrefixes(src Source, prefixes []string) Source {
	if len(prefixes) == 0 {
		return src
	}
	return &Filtered{src: src, prefixes: prefixes}
}

func (f *Filtered) Candidates(ctx context.Context, horizon time.Duration) ([]model.Candidate, error) {
	cands, err := f.src.Candidates(ctx, horizon)
	if err != nil {
		return nil, err
	}
	out := cands[:0:0]
	for _, c := range cands {
		if contract.HasPrefix(c.Ticker, f.prefixes) {
			out = append(out, c)
		}
	}
	return out, nil
}
