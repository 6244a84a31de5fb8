package cache

import "strings"

// Classifier decides whether a query's answer is safe to reuse later.
//
// Only "how-to" style questions are cacheable. Questions about live or
// current instance state must never be served from cache. The deny list is
// scanned before the allow list: a query combining a how-to phrase with a
// live-data phrase is not cacheable.
type Classifier struct {
	// DenyKeywords indicate live instance analysis (never cacheable).
	// Checked first.
	DenyKeywords []string

	// AllowKeywords indicate how-to questions (cacheable).
	AllowKeywords []string

	// RecencyWords decide the default when neither list matches: their
	// presence marks the query as not cacheable.
	RecencyWords []string
}

// NewClassifier returns a classifier with the default keyword lists.
func NewClassifier() *Classifier {
	return &Classifier{
		DenyKeywords: []string{
			"check my", "my instance", "my system", "current", "recent",
			"what is the", "show me the", "get the", "fetch the",
			"error log", "recent changes", "current value", "live data",
			"check the", "what are the", "list the", "display the",
			"schema", "table structure", "syslog", "sys_update_xml",
			"connect to", "live instance", "actual configuration",
		},
		AllowKeywords: []string{
			"how to", "how do i", "how can i", "what is", "explain",
			"best practice", "recommendation", "should i", "what are",
			"guide", "tutorial", "example", "documentation",
		},
		RecencyWords: []string{"my", "current", "recent", "now", "today"},
	}
}

// Cacheable reports whether the query may be stored in or matched against
// the cache.
func (c *Classifier) Cacheable(query string) bool {
	q := strings.ToLower(query)

	for _, kw := range c.DenyKeywords {
		if strings.Contains(q, kw) {
			return false
		}
	}
	for _, kw := range c.AllowKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}

	// Neither list matched: possessive or recency wording means the query
	// is about specific instance state, so don't cache.
	for _, word := range strings.Fields(q) {
		for _, rw := range c.RecencyWords {
			if strings.Trim(word, ".,!?'\"") == rw {
				return false
			}
		}
	}
	return true
}

// NormalizeQuery lowercases and collapses whitespace for exact-match
// comparison.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
