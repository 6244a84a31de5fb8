package cache

import "testing"

func TestClassifierCacheable(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{
			name:  "how-to question",
			query: "How do I create a business rule?",
			want:  true,
		},
		{
			name:  "best practice question",
			query: "What's the best practice for incident assignment?",
			want:  true,
		},
		{
			name:  "live instance analysis",
			query: "Check my instance for failed scheduled jobs",
			want:  false,
		},
		{
			name:  "error log request",
			query: "Show me the error log entries from yesterday",
			want:  false,
		},
		{
			name:  "deny wins over allow",
			query: "How do I read the error log on my instance?",
			want:  false,
		},
		{
			name:  "recency word without either list",
			query: "Did anything change today?",
			want:  false,
		},
		{
			name:  "possessive without either list",
			query: "Why is my approval stuck?",
			want:  false,
		},
		{
			name:  "neutral question defaults to cacheable",
			query: "Explain the difference between a flow and a workflow",
			want:  true,
		},
		{
			name:  "schema request",
			query: "Describe the schema of the incident table",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Cacheable(tt.query); got != tt.want {
				t.Errorf("Cacheable(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"How  Do I   Create a Flow?", "how do i create a flow?"},
		{"  leading and trailing  ", "leading and trailing"},
		{"already normal", "already normal"},
		{"TABS\tand\nnewlines", "tabs and newlines"},
	}

	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
