package heap

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// RegExpFlags lists the accepted flag characters.
const RegExpFlags = "dgimsuy"

// RegExp is a compiled regular expression literal.
type RegExp struct {
	pattern string
	flags   string
	re      *regexp2.Regexp
}

func (*RegExp) Kind() Kind { return KindRegExp }

// NewRegExp compiles pattern with ECMAScript semantics. Flags must be
// drawn from RegExpFlags without repeats.
func (r *Realm) NewRegExp(pattern, flags string) (*RegExp, error) {
	opts, err := parseRegExpFlags(flags)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: /%s/: %v", ErrInvalidRegExp, pattern, err)
	}
	if err := r.allocate(); err != nil {
		return nil, err
	}
	return &RegExp{pattern: pattern, flags: flags, re: re}, nil
}

func parseRegExpFlags(flags string) (regexp2.RegexOptions, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	seen := 0
	for _, c := range flags {
		bit := strings.IndexRune(RegExpFlags, c)
		if bit < 0 {
			return 0, fmt.Errorf("%w: unknown flag %q", ErrInvalidRegExp, c)
		}
		if seen&(1<<bit) != 0 {
			return 0, fmt.Errorf("%w: repeated flag %q", ErrInvalidRegExp, c)
		}
		seen |= 1 << bit
		switch c {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		}
	}
	return opts, nil
}

func (x *RegExp) Pattern() string { return x.pattern }
func (x *RegExp) Flags() string   { return x.flags }

// MatchString reports whether s contains a match.
func (x *RegExp) MatchString(s string) (bool, error) {
	return x.re.MatchString(s)
}
