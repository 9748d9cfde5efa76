package proxy

import (
	"regexp"
	"strings"
)

// XMLA clients close every request envelope with one of two framings,
// depending on the library generation that produced it. Either one marks a
// complete message in the unframed byte stream.
const (
	envelopeEndPrefixed = "</soap:Envelope>"
	envelopeEndPlain    = "</Envelope>"
)

var (
	databaseIDPattern     = regexp.MustCompile(`(?i)<DatabaseID>[0-9a-f-]+</DatabaseID>`)
	catalogNamePattern    = regexp.MustCompile(`(?i)CatalogName=["'][0-9a-f-]+["']`)
	initialCatalogPattern = regexp.MustCompile(`(?i)(?:Initial Catalog|Database)=[0-9a-f-]+`)
)

// rewriter substitutes database-identifier references in a complete request
// so the client resolves against the configured model instead of whatever
// GUID it captured when the connection string was built. It is pure: no
// state, no I/O, and input without any recognized reference passes through
// unchanged.
type rewriter struct {
	database string
}

func newRewriter(database string) *rewriter {
	return &rewriter{database: database}
}

// rewrite applies the three substitutions in a fixed order. Each runs
// globally and case-insensitively over the message; absence of a match is a
// no-op. Replacements are inserted literally so a database name containing
// regexp metacharacters cannot corrupt the output.
func (r *rewriter) rewrite(message string) string {
	message = databaseIDPattern.ReplaceAllStringFunc(message, func(string) string {
		return "<DatabaseID>" + r.database + "</DatabaseID>"
	})
	message = catalogNamePattern.ReplaceAllStringFunc(message, func(string) string {
		return `CatalogName="` + r.database + `"`
	})
	message = initialCatalogPattern.ReplaceAllStringFunc(message, func(string) string {
		return "Initial Catalog=" + r.database
	})
	return message
}

// messageComplete reports whether the accumulated text contains a full
// envelope. Detection is ordinal substring search, not XML parsing; this
// mirrors how the wire traffic actually frames requests and is the contract
// the pumps rely on.
func messageComplete(text string) bool {
	return strings.Contains(text, envelopeEndPrefixed) || strings.Contains(text, envelopeEndPlain)
}
