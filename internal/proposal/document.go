package proposal

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// SectionDelimiter separates the preamble, header block, and body of a document.
const SectionDelimiter = "---"

var numberPattern = regexp.MustCompile(`fip-([0-9]+)`)

// Document is a newly added proposal file resolved from a change request.
type Document struct {
	Number int    `json:"number"`
	Path   string `json:"path"`
	Header Header `json:"header"`
	Body   string `json:"body"`
	// Raw is the unsplit file content.
	Raw string `json:"-"`
}

// ParseDocument splits content on SectionDelimiter into preamble, header, and
// body. With fewer than three sections both header and body are empty.
func ParseDocument(name, content string) Document {
	doc := Document{
		Number: NumberFromPath(name),
		Path:   name,
		Raw:    content,
	}
	parts := strings.SplitN(content, SectionDelimiter, 3)
	if len(parts) < 3 {
		return doc
	}
	doc.Header = ParseHeader(parts[1])
	doc.Body = parts[2]
	return doc
}

// NumberFromPath extracts the digits of "fip-<digits>" from the file name,
// or returns 0 when there are none.
func NumberFromPath(name string) int {
	match := numberPattern.FindStringSubmatch(path.Base(name))
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}
