// Package entity pulls the server name and issue category out of an operator
// query. Both extractors are pure and safe for concurrent use.
package entity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

const name = `([\w][\w.\-]*)`

// Checked in order; the first pattern that matches wins.
var serverNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bserver\s+name\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)\bserver\s+name\s+` + name),
	regexp.MustCompile(`(?i)\bgrafana\b\s*[:\-]\s*["']?` + name),
	regexp.MustCompile(`(?i)\bserver\b\s*[:\-]?\s*["']?` + name),
	regexp.MustCompile(`(?i)\bhostname\b\s*[:\-]?\s*["']?` + name),
	regexp.MustCompile(`(?i)\bci\b\s*[:\-]?\s*["']?` + name),
}

// ServerName returns the first server name found in query.
func ServerName(query string) (string, bool) {
	for _, re := range serverNamePatterns {
		m := re.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return strings.TrimRight(v, ".-"), true
		}
	}
	return "", false
}

type issue struct {
	kind     string
	keywords []string
}

var issues = []issue{
	{"down", []string{"down", "not responding", "crashed", "unavailable"}},
	{"unresponsive", []string{"unresponsive", "frozen", "hanging"}},
	{"slow", []string{"slow", "lagging", "delayed", "taking too long"}},
}

// IssueType returns the first issue category whose keywords occur in query.
func IssueType(query string) (string, bool) {
	q := cases.Fold().String(query)
	for _, is := range issues {
		for _, kw := range is.keywords {
			if strings.Contains(q, kw) {
				return is.kind, true
			}
		}
	}
	return "", false
}
