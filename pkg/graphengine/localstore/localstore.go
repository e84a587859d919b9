// Package localstore provides a minimal embedded reference implementation
// of graphengine.Store so the CLI and tests have something runnable to
// exercise end to end. It is explicitly NOT the "embedded labelled-property
// graph with vector indices" the specification excludes from scope — it is
// a JSON-file-backed episode log with substring/keyword search, standing in
// for that excluded engine.
package localstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/persist"
)

const stateBasename = "episodes"

type storedEpisode struct {
	graphengine.Episode
	Seq int64 `json:"seq"`
}

type stateFile struct {
	Episodes []storedEpisode `json:"episodes"`
	NextSeq  int64           `json:"next_seq"`
}

// Store is a JSON-file-backed graphengine.Store implementation.
type Store struct {
	mu    sync.Mutex
	dir   string
	state stateFile
}

// Open loads (or initializes) the episode log at dir.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir}

	var loaded stateFile

	err := persist.LoadState(dir, stateBasename, persist.NewJSONCodec(), &loaded)
	if err == nil {
		s.state = loaded
	}

	return s, nil
}

// AddEpisode implements graphengine.Store. Duplicate episodes (same Name +
// GroupID) are deduplicated by overwriting the prior entry, matching the
// indexer's crash-safety requirement that a re-processed commit dedupes by
// name+group_id rather than appending a second copy.
func (s *Store) AddEpisode(_ context.Context, ep graphengine.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.state.Episodes {
		if existing.Name == ep.Name && existing.GroupID == ep.GroupID {
			s.state.Episodes[i].Episode = ep

			return s.persist()
		}
	}

	s.state.NextSeq++
	s.state.Episodes = append(s.state.Episodes, storedEpisode{Episode: ep, Seq: s.state.NextSeq})

	return s.persist()
}

// DeleteEpisodesBySourceSubstring implements graphengine.Store.
func (s *Store) DeleteEpisodesBySourceSubstring(_ context.Context, substring string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Episodes[:0]
	removed := 0

	for _, ep := range s.state.Episodes {
		if strings.Contains(ep.SourceDesc, substring) {
			removed++

			continue
		}

		kept = append(kept, ep)
	}

	s.state.Episodes = kept

	return removed, s.persist()
}

// Search implements graphengine.Store with a keyword-overlap scorer: the
// score is the fraction of query terms found in the episode body or name.
func (s *Store) Search(_ context.Context, query string, limit int) ([]graphengine.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	results := make([]graphengine.SearchResult, 0, len(s.state.Episodes))

	for _, ep := range s.state.Episodes {
		haystack := strings.ToLower(ep.Name + " " + ep.Body)

		hits := 0

		for _, term := range terms {
			if strings.Contains(haystack, term) {
				hits++
			}
		}

		if hits == 0 {
			continue
		}

		results = append(results, graphengine.SearchResult{
			Name:       ep.Name,
			Body:       ep.Body,
			SourceDesc: ep.SourceDesc,
			Score:      float64(hits) / float64(len(terms)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Compact implements graphengine.Store. The reference store has no
// secondary indices to rebuild, so this rewrites the state file to drop
// any stale tombstones — a no-op beyond re-persisting the current state.
func (s *Store) Compact(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persist()
}

// List returns every episode, most recently added first.
func (s *Store) List() []graphengine.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]graphengine.Episode, 0, len(s.state.Episodes))
	for i := len(s.state.Episodes) - 1; i >= 0; i-- {
		out = append(out, s.state.Episodes[i].Episode)
	}

	return out
}

// Show returns one episode by exact name, if present.
func (s *Store) Show(name string) (graphengine.Episode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ep := range s.state.Episodes {
		if ep.Name == name {
			return ep.Episode, true
		}
	}

	return graphengine.Episode{}, false
}

// Delete removes one episode by exact name. Reports whether it was found.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ep := range s.state.Episodes {
		if ep.Name == name {
			s.state.Episodes = append(s.state.Episodes[:i], s.state.Episodes[i+1:]...)

			return true, s.persist()
		}
	}

	return false, nil
}

func (s *Store) persist() error {
	return persist.SaveState(s.dir, stateBasename, persist.NewJSONCodec(), s.state)
}
