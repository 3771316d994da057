// Package docs provides the documentation lookup collaborator invoked
// by the docs.query room handler.
package docs

import "context"

// Tool answers free-text documentation queries. Results are never
// cached; the room appends the query to its history regardless of
// outcome.
type Tool interface {
	Query(ctx context.Context, text, topic string, maxResults int) (*Result, error)
}

// Result is one answered query.
type Result struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// Source is one document backing an answer.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
