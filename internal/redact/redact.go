// Package redact masks credentials in text before it is stored or streamed.
package redact

import (
	"log"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// slackToken matches Slack bot, user, app and refresh tokens.
var slackToken = regexp.MustCompile(`xox[abeoprs]-[A-Za-z0-9-]{8,}`)

// Filter replaces known secret values, and anything shaped like a Slack
// token, with [REDACTED:NAME] placeholders.
type Filter struct {
	values []string          // longest first so overlapping secrets redact fully
	names  map[string]string // secret value -> placeholder
}

// New builds a Filter from name -> value pairs. Empty values are skipped.
// URL-encoded variants are redacted too.
func New(secrets map[string]string) *Filter {
	f := &Filter{names: make(map[string]string)}
	for name, value := range secrets {
		if value == "" {
			continue
		}
		if len(value) < 4 {
			log.Printf("redact: %s is shorter than 4 characters; false-positive redaction risk", name)
		}
		f.add(value, "[REDACTED:"+name+"]")
		if encoded := url.QueryEscape(value); encoded != value {
			f.add(encoded, "[REDACTED:"+name+":urlencoded]")
		}
	}
	sort.Slice(f.values, func(i, j int) bool { return len(f.values[i]) > len(f.values[j]) })
	return f
}

func (f *Filter) add(value, placeholder string) {
	if _, ok := f.names[value]; ok {
		return
	}
	f.names[value] = placeholder
	f.values = append(f.values, value)
}

// Redact returns input with every known secret replaced. A nil Filter only
// masks Slack tokens.
func (f *Filter) Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	if f != nil {
		for _, value := range f.values {
			result = strings.ReplaceAll(result, value, f.names[value])
		}
	}
	return slackToken.ReplaceAllString(result, "[REDACTED:slack_token]")
}
