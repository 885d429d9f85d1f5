// Package proposal turns files in a tracked proposal repository into
// documents: a permissive header parser, filename numbering, and a resolver
// that drives a repository snapshot for one change request.
package proposal

import "strings"

// Header holds the metadata block at the top of a proposal document.
// Every field defaults to the empty string.
type Header struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	DiscussionsTo string `json:"discussionsTo"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Category      string `json:"category"`
	Created       string `json:"created"`
}

type headerField struct {
	key    string
	assign func(*Header, string)
}

// headerFields is matched by key prefix, in order.
var headerFields = []headerField{
	{"title", func(h *Header, v string) { h.Title = v }},
	{"author", func(h *Header, v string) { h.Author = v }},
	{"discussions-to", func(h *Header, v string) { h.DiscussionsTo = v }},
	{"status", func(h *Header, v string) { h.Status = v }},
	{"type", func(h *Header, v string) { h.Type = v }},
	{"category", func(h *Header, v string) { h.Category = v }},
	{"created", func(h *Header, v string) { h.Created = v }},
}

type headerPair struct {
	key   string
	value string
}

// ParseHeader reads near-YAML "key: value" lines. It never fails: lines
// without a colon continue the previous value, values keep any further
// colons, and unknown keys are dropped. A later key overwrites an earlier one.
func ParseHeader(source string) Header {
	var pairs []headerPair
	for _, line := range strings.Split(source, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			if len(pairs) > 0 {
				pairs[len(pairs)-1].value += "\n" + line
			}
			continue
		}
		pairs = append(pairs, headerPair{key: key, value: value})
	}

	var header Header
	for _, pair := range pairs {
		key := strings.ToLower(strings.TrimSpace(pair.key))
		for _, field := range headerFields {
			if strings.HasPrefix(key, field.key) {
				field.assign(&header, strings.TrimSpace(pair.value))
				break
			}
		}
	}
	return header
}
