package docs

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is a Tool backed by a YAML knowledge file of topics and
// entries. Matching is keyword and substring overlap; no external
// services are involved.
type Catalog struct {
	topics     []catalogTopic
	maxResults int
}

type catalogTopic struct {
	Name    string         `yaml:"name"`
	Entries []catalogEntry `yaml:"entries"`
}

type catalogEntry struct {
	Title    string   `yaml:"title"`
	URL      string   `yaml:"url"`
	Summary  string   `yaml:"summary"`
	Keywords []string `yaml:"keywords"`
}

type catalogFile struct {
	Topics []catalogTopic `yaml:"topics"`
}

// LoadCatalog reads the YAML catalog at path. maxResults caps the
// sources per answer; <= 0 defaults to 5.
func LoadCatalog(path string, maxResults int) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read docs catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse docs catalog: %w", err)
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Catalog{topics: file.Topics, maxResults: maxResults}, nil
}

var _ Tool = (*Catalog)(nil)

type scoredEntry struct {
	entry catalogEntry
	score int
}

// Query scores every entry against the query tokens. Keyword hits
// weigh double a title or summary substring hit. An empty result set
// is a valid answer with zero confidence, not an error.
func (c *Catalog) Query(ctx context.Context, text, topic string, maxResults int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxResults <= 0 || maxResults > c.maxResults {
		maxResults = c.maxResults
	}

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return &Result{Sources: []Source{}}, nil
	}

	var scored []scoredEntry
	for _, t := range c.topics {
		if topic != "" && !strings.EqualFold(t.Name, topic) {
			continue
		}
		for _, e := range t.Entries {
			if s := scoreEntry(e, tokens); s > 0 {
				scored = append(scored, scoredEntry{entry: e, score: s})
			}
		}
	}
	if len(scored) == 0 {
		return &Result{
			Answer:  "No matching documentation found.",
			Sources: []Source{},
		}, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	sources := make([]Source, 0, len(scored))
	for _, s := range scored {
		sources = append(sources, Source{
			Title:   s.entry.Title,
			URL:     s.entry.URL,
			Snippet: s.entry.Summary,
		})
	}

	// Perfect confidence means every token hit a keyword of the top
	// entry.
	confidence := float64(scored[0].score) / float64(2*len(tokens))
	if confidence > 1 {
		confidence = 1
	}
	return &Result{
		Answer:     scored[0].entry.Summary,
		Sources:    sources,
		Confidence: confidence,
	}, nil
}

func scoreEntry(e catalogEntry, tokens []string) int {
	title := strings.ToLower(e.Title)
	summary := strings.ToLower(e.Summary)
	keywords := make([]string, len(e.Keywords))
	for i, k := range e.Keywords {
		keywords[i] = strings.ToLower(k)
	}

	score := 0
	for _, tok := range tokens {
		for _, k := range keywords {
			if k == tok {
				score += 2
				break
			}
		}
		if strings.Contains(title, tok) {
			score++
		}
		if strings.Contains(summary, tok) {
			score++
		}
	}
	return score
}
