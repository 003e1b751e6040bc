package memory

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// tagStopwords are common English words excluded from auto-generated tags.
var tagStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "of": true, "on": true, "or": true,
	"over": true, "that": true, "the": true, "their": true, "this": true,
	"to": true, "under": true, "was": true, "were": true, "with": true,
}

// NormalizeTags canonicalizes a tag list: trim, lowercase, collapse internal
// whitespace to "-", drop empties, dedupe preserving first occurrence.
// Tags are stored and filtered in this form only.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		clean := normalizeTag(tag)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		normalized = append(normalized, clean)
	}
	return normalized
}

func normalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), "-")
}

// SplitTags parses a comma-separated tag string and normalizes the result.
func SplitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(raw, ","))
}

// tagsToJSON serializes tags for the observations.tags column.
func tagsToJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// parseTagsJSON is the inverse of tagsToJSON. Malformed values decode to nil
// rather than failing a read.
func parseTagsJSON(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// tagsToText flattens tags to the space-joined blob indexed by FTS.
func tagsToText(tags []string) string {
	return strings.Join(tags, " ")
}

var tagTokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9\-]{2,}`)

// Truncate shortens s for display, appending an ellipsis when clipped.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// AutoTags generates up to limit tags from title and summary text, ranked by
// frequency with stopwords removed.
func AutoTags(title, summary string, limit int) []string {
	if limit <= 0 {
		limit = 6
	}
	text := strings.ToLower(title + " " + summary)
	counts := make(map[string]int)
	for _, token := range tagTokenPattern.FindAllString(text, -1) {
		if tagStopwords[token] {
			continue
		}
		counts[token]++
	}

	ranked := make([]string, 0, len(counts))
	for token := range counts {
		ranked = append(ranked, token)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
