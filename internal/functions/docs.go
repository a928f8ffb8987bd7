package functions

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/docs"
)

const (
	DocsSearchFunctionName = "searchDocs"
	defaultDocsLimit       = 3
)

// DocsSearch answers searchDocs calls from a docs.Index.
type DocsSearch struct {
	index *docs.Index
}

func NewDocsSearch(index *docs.Index) *DocsSearch {
	return &DocsSearch{index: index}
}

func (d *DocsSearch) Fetch(_ context.Context, args agent.Arguments) (map[string]any, error) {
	query, _ := args.String("query")
	limit := args.IntOr("limit", defaultDocsLimit)

	results := make([]any, 0, limit)
	for _, m := range d.index.Search(query, limit) {
		results = append(results, map[string]any{
			"filename": m.Filename,
			"content":  m.Text,
			"score":    float64(m.Score),
		})
	}

	return map[string]any{
		"query":   query,
		"results": results,
	}, nil
}

func CreateDocsSearchFunctionDeclaration(fetcher agent.Fetcher) *agent.FunctionDeclaration {
	minLimit, maxLimit := 1.0, 10.0

	return &agent.FunctionDeclaration{
		Name:        DocsSearchFunctionName,
		Description: "Searches the internal document library for passages relevant to the query.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "What information is needed",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of passages to return",
					Minimum:     &minLimit,
					Maximum:     &maxLimit,
				},
			},
			Required: []string{"query"},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string"},
				"results": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"filename": {Type: "string", Description: "Source document filename"},
							"content":  {Type: "string", Description: "Relevant excerpt"},
							"score":    {Type: "number"},
						},
						Required: []string{"filename", "content"},
					},
				},
			},
			Required: []string{"results"},
		},
		Fetcher: fetcher,
	}
}
