package inspect

import (
	"regexp"
)

// Kind classifies a detected payload signature.
type Kind string

const (
	KindSQLInjection     Kind = "sql_injection"
	KindXSS              Kind = "xss"
	KindPathTraversal    Kind = "path_traversal"
	KindCommandInjection Kind = "command_injection"
)

// Mode selects what happens to a request once a signature is found.
type Mode string

const (
	// ModeBlock rejects the request.
	ModeBlock Mode = "block"
	// ModeSanitize strips the matched substrings and lets the request
	// continue with the cleaned values.
	ModeSanitize Mode = "sanitize"
)

// Finding describes a single flagged string leaf. Field is a dotted path into
// the scanned structure ("query.search", "body.patient.name").
type Finding struct {
	Kind  Kind
	Field string
	Value string
}

// family is an ordered set of patterns for one Kind. Order matters only for
// which Kind a multi-signature value reports; SQL is checked first.
type family struct {
	kind     Kind
	patterns []*regexp.Regexp
}

var families = []family{
	{
		kind: KindSQLInjection,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(union\s+(all\s+)?select|select\s+(\*|\w+(\s*,\s*\w+)+)\s+from|insert\s+into|delete\s+from|drop\s+(table|database)|update\s+\w+\s+set|truncate\s+table)\b`),
			regexp.MustCompile(`(?i)('|")\s*(or|and)\s+('|")?\w+('|")?\s*=\s*('|")?\w+`),
			regexp.MustCompile(`(?i)\b(or|and)\s+1\s*=\s*1\b`),
			regexp.MustCompile(`(--|#|/\*)\s*$|;\s*--`),
			regexp.MustCompile(`(?i)\b(exec(ute)?|xp_cmdshell|sp_executesql)\b`),
		},
	},
	{
		kind: KindXSS,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<\s*/?\s*script\b`),
			regexp.MustCompile(`(?i)javascript\s*:`),
			regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|submit)\s*=`),
			regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg)\b`),
			regexp.MustCompile(`(?i)(document\.(cookie|location|write)|window\.location)`),
		},
	},
	{
		kind: KindPathTraversal,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\.\.[/\\]`),
			regexp.MustCompile(`(?i)%2e%2e(%2f|%5c|/)`),
			regexp.MustCompile(`(?i)(/etc/(passwd|shadow)|[a-z]:\\windows\\)`),
		},
	},
	{
		kind: KindCommandInjection,
		patterns: []*regexp.Regexp{
			regexp.MustCompile("(;|\\||&&|`|\\$\\()\\s*(cat|ls|pwd|whoami|id|rm|curl|wget|nc|sh|bash|chmod|kill|ping)\\b"),
			regexp.MustCompile(`(?i)\$\{IFS\}`),
			regexp.MustCompile("`[^`]+`"),
		},
	},
}

// Detector scans values and, in ModeSanitize, rewrites them.
type Detector struct {
	mode Mode
}

// NewDetector returns a detector in the given mode. An empty mode defaults to
// ModeBlock.
func NewDetector(mode Mode) *Detector {
	if mode == "" {
		mode = ModeBlock
	}
	return &Detector{mode: mode}
}

// Mode reports the configured mode.
func (d *Detector) Mode() Mode { return d.mode }

// Match checks a single string against every pattern family and returns the
// first matching Kind.
func Match(s string) (Kind, bool) {
	for _, f := range families {
		for _, p := range f.patterns {
			if p.MatchString(s) {
				return f.kind, true
			}
		}
	}
	return "", false
}

// Scan walks v (a decoded JSON document, url.Values-shaped map, or plain
// string) and returns a finding per flagged string leaf. Non-string leaves
// (numbers, bools, nil) are never flagged.
func (d *Detector) Scan(prefix string, v interface{}) []Finding {
	var out []Finding
	walk(prefix, v, func(path, leaf string) {
		if kind, ok := Match(leaf); ok {
			out = append(out, Finding{Kind: kind, Field: path, Value: leaf})
		}
	})
	return out
}

// Sanitize returns a copy of v with every matched substring removed from its
// string leaves. The input is not modified.
func (d *Detector) Sanitize(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return scrub(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = d.Sanitize(e)
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(t))
		for k, vs := range t {
			cp := make([]string, len(vs))
			for i, s := range vs {
				cp[i] = scrub(s)
			}
			out[k] = cp
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = scrub(s)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = d.Sanitize(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = scrub(s)
		}
		return out
	default:
		return v
	}
}

func scrub(s string) string {
	for _, f := range families {
		for _, p := range f.patterns {
			s = p.ReplaceAllString(s, "")
		}
	}
	return s
}

func walk(path string, v interface{}, fn func(path, leaf string)) {
	switch t := v.(type) {
	case string:
		fn(path, t)
	case map[string]interface{}:
		for k, e := range t {
			walk(join(path, k), e, fn)
		}
	case map[string][]string:
		for k, vs := range t {
			for _, s := range vs {
				walk(join(path, k), s, fn)
			}
		}
	case map[string]string:
		for k, s := range t {
			walk(join(path, k), s, fn)
		}
	case []interface{}:
		for _, e := range t {
			walk(path, e, fn)
		}
	case []string:
		for _, s := range t {
			walk(path, s, fn)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
