package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxDetailLen = 300

var reSpaces = regexp.MustCompile(`\s+`)

// describeErrorBody turns an error response into a single line. Besides the
// JSON envelope, gateways in front of the API answer with HTML pages.
func describeErrorBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if trimmed[0] == '{' {
		var apiResp apiResponse
		if err := json.Unmarshal(trimmed, &apiResp); err == nil {
			parts := formatErrors(apiResp.Errors)
			if msg := strings.TrimSpace(apiResp.Message); msg != "" {
				parts = append([]string{msg}, parts...)
			}
			if len(parts) > 0 {
				return truncate(strings.Join(parts, "; "))
			}
		}
		return truncate(string(trimmed))
	}

	if looksLikeHTML(trimmed) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
		if err == nil {
			doc.Find("script,style").Remove()
			title := normalizeSpaces(doc.Find("title").First().Text())
			text := normalizeSpaces(doc.Find("body").Text())
			switch {
			case title != "" && text != "" && !strings.HasPrefix(text, title):
				return truncate(title + ": " + text)
			case text != "":
				return truncate(text)
			case title != "":
				return truncate(title)
			}
		}
	}

	return truncate(normalizeSpaces(string(trimmed)))
}

// formatErrors accepts the shapes the API uses for "errors": a list of
// messages, a field→messages object or a plain string.
func formatErrors(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var byField map[string][]string
	if err := json.Unmarshal(raw, &byField); err == nil {
		fields := make([]string, 0, len(byField))
		for f := range byField {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			out = append(out, fmt.Sprintf("%s: %s", f, strings.Join(byField[f], ", ")))
		}
		return out
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return []string{string(raw)}
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") || strings.Contains(head, "<body")
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxDetailLen {
		return s
	}
	return string(r[:maxDetailLen]) + "…"
}
