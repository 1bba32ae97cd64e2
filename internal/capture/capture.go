// Package capture classifies the URLs an embedded browser navigates to.
//
// Every navigation attempt is run through Classify. A URL carrying the
// configured error parameter ends the flow with an error, one carrying the
// code parameter ends it with a code, and anything else lets the browser
// carry on.
package capture

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Kind tags an Outcome.
type Kind int

const (
	// Continue lets the navigation proceed.
	Continue Kind = iota
	// Code means the authorization code was found.
	Code
	// Error means the authorization server reported a failure.
	Error
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Code:
		return "code"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the classification of one navigation attempt. Value holds the
// code for Code and the error description for Error.
type Outcome struct {
	Kind  Kind
	Value string
}

// Terminal reports whether the outcome ends the flow.
func (o Outcome) Terminal() bool {
	return o.Kind == Code || o.Kind == Error
}

// Config names the query parameters Classify looks for.
type Config struct {
	CodeParam  string
	ErrorParam string
}

// Classify inspects candidate and decides what the browser should do.
//
// Relative URLs and URLs that cannot be parsed are never terminal. If both
// parameters are present the error parameter wins. A parameter that repeats
// yields its first value.
func Classify(candidate string, cfg Config) Outcome {
	u, err := parseNavigation(candidate)
	if err != nil || u.Scheme == "" {
		return Outcome{Kind: Continue}
	}

	if v, ok := firstValue(u.RawQuery, cfg.ErrorParam); ok {
		return Outcome{Kind: Error, Value: v}
	}
	if v, ok := firstValue(u.RawQuery, cfg.CodeParam); ok {
		return Outcome{Kind: Code, Value: v}
	}
	return Outcome{Kind: Continue}
}

// parseNavigation parses a URL the way a browser address bar would accept it.
// Browsers strip surrounding whitespace and line breaks, keep stray '%' signs
// in the path and escape control characters, all of which url.Parse rejects.
// Hosts are still checked strictly.
func parseNavigation(candidate string) (*url.URL, error) {
	u, err := url.Parse(candidate)
	if err == nil {
		return u, nil
	}

	cleaned := strings.TrimFunc(candidate, func(r rune) bool { return r <= ' ' })
	cleaned = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, cleaned)

	scheme, rest, ok := strings.Cut(cleaned, ":")
	if !ok || !validScheme(scheme) {
		return nil, err
	}

	// Only the path is repaired; authority, query and fragment pass through.
	pathStart := 0
	if strings.HasPrefix(rest, "//") {
		pathStart = 2 + strings.IndexAny(rest[2:]+"/", "/?#")
	}
	pathEnd := len(rest)
	if i := strings.IndexAny(rest[pathStart:], "?#"); i >= 0 {
		pathEnd = pathStart + i
	}
	repaired := scheme + ":" + rest[:pathStart] + escapeStray(rest[pathStart:pathEnd]) + escapeControl(rest[pathEnd:])

	if u, retryErr := url.Parse(repaired); retryErr == nil {
		return u, nil
	}
	return nil, err
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// escapeStray escapes '%' signs that do not start a valid triple, and
// control characters.
func escapeStray(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '%' && !isTriple(path, i) {
			b.WriteString("%25")
			continue
		}
		if c < 0x20 || c == 0x7f {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeControl(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7f {
			fmt.Fprintf(&b, "%%%02X", c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// firstValue scans an application/x-www-form-urlencoded query left to right
// and returns the decoded value of the first pair whose decoded name is name.
func firstValue(rawQuery, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for rawQuery != "" {
		var pair string
		pair, rawQuery, _ = strings.Cut(rawQuery, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if formDecode(k) != name {
			continue
		}
		return formDecode(v), true
	}
	return "", false
}

// formDecode turns '+' into a space and decodes every valid %XX triple,
// leaving malformed ones as text. Bytes that are not UTF-8 become U+FFFD,
// one per byte.
func formDecode(s string) string {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			buf = append(buf, ' ')
		case c == '%' && isTriple(s, i):
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			buf = append(buf, c)
		}
	}
	if utf8.Valid(buf) {
		return string(buf)
	}

	var b strings.Builder
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		b.WriteRune(r)
		buf = buf[size:]
	}
	return b.String()
}

func isTriple(s string, i int) bool {
	return i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2])
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
