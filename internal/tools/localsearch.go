package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalSearcher is a KnowledgeSearcher over plain text and markdown files
// on disk, split into public docs and client context directories. It is a
// keyword scorer, good enough for local runs; production deployments plug
// in a real retrieval index behind the same interface.
type LocalSearcher struct {
	publicDir  string
	contextDir string
}

// NewLocalSearcher creates a file-backed searcher. Either directory may be
// empty, in which case that source type returns no results.
func NewLocalSearcher(publicDir, contextDir string) *LocalSearcher {
	return &LocalSearcher{publicDir: publicDir, contextDir: contextDir}
}

func (s *LocalSearcher) Search(ctx context.Context, query, sourceType string, k int) ([]SearchResult, error) {
	dir := s.publicDir
	if sourceType == "user_context" {
		dir = s.contextDir
	}
	if dir == "" {
		return nil, nil
	}

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		result SearchResult
		score  int
	}
	var hits []scored

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
		default:
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		lower := strings.ToLower(string(data))
		score := 0
		for _, term := range terms {
			score += strings.Count(lower, term)
		}
		if score > 0 {
			hits = append(hits, scored{
				result: SearchResult{
					Source:  filepath.Base(path),
					Content: excerpt(string(data), terms),
				},
				score: score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = h.result
	}
	return out, nil
}

// excerpt returns the paragraph around the first term hit, capped in size.
func excerpt(content string, terms []string) string {
	const maxExcerpt = 800
	lower := strings.ToLower(content)
	pos := -1
	for _, term := range terms {
		if i := strings.Index(lower, term); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}
	start := strings.LastIndex(content[:pos], "\n\n")
	if start < 0 {
		start = 0
	}
	end := start + maxExcerpt
	if end > len(content) {
		end = len(content)
	}
	return strings.TrimSpace(content[start:end])
}
