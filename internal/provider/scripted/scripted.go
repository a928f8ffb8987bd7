// Package scripted is an offline ModelService that proposes function calls
// from regular-expression rules. It backs the demo mode and tests.
package scripted

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/model"
)

// Rule proposes a call to Function when Pattern matches the user message.
// Arguments maps argument names to submatch indexes of Pattern; empty
// submatches are left out. Normalize optionally rewrites a captured value
// before it is sent.
type Rule struct {
	Pattern   *regexp.Regexp
	Function  string
	Arguments map[string]int
	Normalize map[string]func(string) string
}

// Service answers with the first matching rule, or with Fallback text.
type Service struct {
	rules    []Rule
	Fallback string
}

func New(rules ...Rule) *Service {
	return &Service{
		rules:    rules,
		Fallback: "I can only answer questions about the functions I know.",
	}
}

// WeatherRule proposes findWeather for prompts such as "What's the weather in New York, C?".
func WeatherRule() Rule {
	return Rule{
		Pattern:   regexp.MustCompile(`(?i)weather in ([^,?]+?)\s*(?:,\s*([CF]))?\s*\??$`),
		Function:  "findWeather",
		Arguments: map[string]int{"location": 1, "unit": 2},
		Normalize: map[string]func(string) string{"unit": strings.ToUpper},
	}
}

// DocsRule proposes searchDocs for prompts starting with "search docs".
func DocsRule() Rule {
	return Rule{
		Pattern:   regexp.MustCompile(`(?i)^search docs(?: for)?:?\s+(.+)$`),
		Function:  "searchDocs",
		Arguments: map[string]int{"query": 1},
	}
}

func (s *Service) Complete(_ context.Context, req agent.ModelRequest) (agent.ModelResponse, error) {
	if req.FunctionResult != nil {
		return agent.ModelResponse{Text: summarize(req.FunctionResult)}, nil
	}

	for _, rule := range s.rules {
		if !offered(req.Functions, rule.Function) {
			continue
		}
		m := rule.Pattern.FindStringSubmatch(strings.TrimSpace(req.UserMessage))
		if m == nil {
			continue
		}

		args := make(map[string]string, len(rule.Arguments))
		for name, idx := range rule.Arguments {
			if idx >= len(m) || m[idx] == "" {
				continue
			}
			v := strings.TrimSpace(m[idx])
			if fn := rule.Normalize[name]; fn != nil {
				v = fn(v)
			}
			args[name] = v
		}
		data, err := json.Marshal(args)
		if err != nil {
			return agent.ModelResponse{}, fmt.Errorf("scripted: encode arguments: %w", err)
		}

		return agent.ModelResponse{
			FunctionCall: &model.FunctionCall{Name: rule.Function, Arguments: string(data)},
		}, nil
	}

	return agent.ModelResponse{Text: s.Fallback}, nil
}

func offered(functions []*agent.FunctionDeclaration, name string) bool {
	return slices.ContainsFunc(functions, func(fd *agent.FunctionDeclaration) bool {
		return fd.Name == name
	})
}

func summarize(result *model.FunctionResult) string {
	keys := slices.Sorted(maps.Keys(result.Values))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s is %v", k, result.Values[k]))
	}
	return fmt.Sprintf("According to %s, %s.", result.Name, strings.Join(parts, "; "))
}
