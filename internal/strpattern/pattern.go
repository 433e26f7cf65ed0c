// Package strpattern implements the String & Pattern component (spec.md
// §4.1): glob/regex/extended-regex compilation into four anchor variants,
// plus the match() entry point used by EntryList and the Driver's
// directory-pattern resolution.
package strpattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind selects which pattern syntax Compile interprets.
type Kind int

const (
	Glob Kind = iota
	Regex
	ExtendedRegex
)

// Mode selects which of the four compiled anchor variants Match uses.
type Mode int

const (
	AnchoredBegin Mode = iota
	AnchoredEnd
	FullyAnchored
	Unanchored
)

// ErrInvalidPattern is returned when compilation fails, surfaced to
// callers as the InvalidPattern error code (spec.md §6).
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern holds the four compiled variants of one source pattern.
type Pattern struct {
	source     string
	ignoreCase bool
	begin      *regexp.Regexp
	end        *regexp.Regexp
	full       *regexp.Regexp
	unanchored *regexp.Regexp
}

// Compile translates src (interpreted per kind) into a regex source and
// compiles all four anchor variants. A glob's `*` becomes "any run", `?`
// becomes "one character" (one UTF-8 code point, not a single byte of a
// multi-byte character), and `.[](){}+|^$\` are escaped before
// translation.
func Compile(kind Kind, src string, ignoreCase bool) (*Pattern, error) {
	var body string
	switch kind {
	case Glob:
		body = globToRegexBody(src)
	case Regex, ExtendedRegex:
		body = src
	default:
		return nil, fmt.Errorf("%w: unknown pattern kind", ErrInvalidPattern)
	}

	prefix := ""
	if ignoreCase {
		prefix = "(?i)"
	}

	compile := func(pat string) (*regexp.Regexp, error) {
		re, err := regexp.Compile(prefix + pat)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return re, nil
	}

	begin, err := compile("^(?:" + body + ")")
	if err != nil {
		return nil, err
	}
	end, err := compile("(?:" + body + ")$")
	if err != nil {
		return nil, err
	}
	full, err := compile("^(?:" + body + ")$")
	if err != nil {
		return nil, err
	}
	unanchored, err := compile(body)
	if err != nil {
		return nil, err
	}

	return &Pattern{
		source:     src,
		ignoreCase: ignoreCase,
		begin:      begin,
		end:        end,
		full:       full,
		unanchored: unanchored,
	}, nil
}

// IsValid reports whether src compiles under kind without keeping the
// result; used by property test 7 (pattern validity).
func IsValid(kind Kind, src string, ignoreCase bool) bool {
	_, err := Compile(kind, src, ignoreCase)
	return err == nil
}

// Match finds the first match of p in s at or after startIndex, per mode.
// It returns (matchIndex, matchLength, true) on success.
func Match(p *Pattern, s string, startIndex int, mode Mode) (int, int, bool) {
	if p == nil || startIndex > len(s) {
		return 0, 0, false
	}
	if startIndex < 0 {
		startIndex = 0
	}

	var re *regexp.Regexp
	switch mode {
	case AnchoredBegin:
		re = p.begin
	case AnchoredEnd:
		re = p.end
	case FullyAnchored:
		re = p.full
	default:
		re = p.unanchored
	}

	loc := re.FindStringIndex(s[startIndex:])
	if loc == nil {
		return 0, 0, false
	}
	return startIndex + loc[0], loc[1] - loc[0], true
}

// globMeta is the set of glob/regex metacharacters that must be escaped
// when translating literal glob text into a regex body.
const globMeta = `.[](){}+|^$\`

// Escape quotes s so that compiling it as a glob round-trips to the
// literal string s (property test 6).
func Escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(globMeta, r) || r == '*' || r == '?' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func globToRegexBody(glob string) string {
	var b strings.Builder
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		default:
			if strings.ContainsRune(globMeta, r) {
				b.WriteString(regexp.QuoteMeta(string(r)))
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
