package search

import (
	"fmt"
	"net/url"
	"strings"
)

// Strategy is one way of asking the search surface. URLTemplate carries a
// single %s for the escaped query text.
type Strategy struct {
	Name        string `yaml:"name"`
	URLTemplate string `yaml:"url_template"`
	// QuerySuffix is appended to the query text before escaping.
	QuerySuffix string `yaml:"query_suffix"`
}

func (s Strategy) URL(query string) string {
	return fmt.Sprintf(s.URLTemplate, url.QueryEscape(query+s.QuerySuffix))
}

// DefaultStrategies mirrors the three probe tables: the map listing feed,
// the local results pack and the organic web results.
func DefaultStrategies(baseURL string) []Strategy {
	baseURL = strings.TrimRight(baseURL, "/")
	return []Strategy{
		{Name: "maps", URLTemplate: baseURL + "/maps/search/%s?hl=zh-TW"},
		{Name: "local", URLTemplate: baseURL + "/search?tbm=lcl&q=%s&hl=zh-TW"},
		{Name: "web", URLTemplate: baseURL + "/search?q=%s&hl=zh-TW", QuerySuffix: " 地址"},
	}
}

// Formulations returns up to limit distinct query texts for one request.
func Formulations(keyword, hint, category string, limit int) []string {
	keyword, hint, category = tidy(keyword), tidy(hint), tidy(category)
	if limit < 1 {
		limit = 1
	}

	candidates := []string{join(keyword, hint)}
	if category != "" && !strings.Contains(keyword, category) {
		candidates = append(candidates,
			join(keyword, category, hint),
			join(hint, keyword, category))
	} else {
		candidates = append(candidates, join(hint, keyword))
	}

	seen := make(map[string]bool)
	var out []string
	for _, q := range candidates {
		k := strings.ToLower(q)
		if q == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Broadened is the generic query tried once when nothing else found
// anything.
func Broadened(hint, category string) string {
	return join(tidy(category), tidy(hint))
}

func tidy(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
