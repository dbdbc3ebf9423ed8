package normalize

import (
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/livinlefevreloca/p2g/internal/model"
)

var separators = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Slug folds a display name into a single Graphite path node: lower case,
// punctuation and whitespace collapsed to underscores, word boundaries split.
func Slug(s string) string {
	words := strings.Fields(separators.ReplaceAllString(s, " "))
	if len(words) == 0 {
		return "unknown"
	}
	return strcase.ToSnake(strings.Join(words, " "))
}

// Path joins the kind prefix, category segment, entity name, grouping nodes and
// metric name. Empty groups are omitted.
//
//	Path(model.KindCheck, "results", "API Gateway (EU)", "status", "eu-west")
//	  => checks.results.api_gateway_eu.eu_west.status
func Path(kind model.EntityKind, segment, name, metric string, groups ...string) string {
	parts := make([]string, 0, 4+len(groups))
	parts = append(parts, kind.PathPrefix(), segment, Slug(name))
	for _, g := range groups {
		if strings.TrimSpace(g) == "" {
			continue
		}
		parts = append(parts, Slug(g))
	}
	parts = append(parts, metric)
	return strings.Join(parts, ".")
}
