package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const redactionMark = "[REDACTED]"

// Finding records a single detected secret. The matched text itself is
// deliberately absent so findings can be logged and returned over the API.
type Finding struct {
	Rule     string   `json:"rule"`
	Describe string   `json:"description"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

// Result is the outcome of redacting one piece of content.
type Result struct {
	Content  string         `json:"content"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Redacted reports whether anything was replaced.
func (r *Result) Redacted() bool { return len(r.Findings) > 0 }

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []string
}

// Redactor replaces detected secrets with a redaction mark. It is safe for
// concurrent use once constructed.
type Redactor struct {
	rules     []compiledRule
	allowlist []*regexp.Regexp
}

// NewRedactor compiles the given rules and allowlist. A nil rules slice
// selects DefaultRules. Allowlist patterns exempt matches, typically test
// fixtures and documentation placeholders.
func NewRedactor(rules []Rule, allow *Allowlist) (*Redactor, error) {
	if rules == nil {
		rules = DefaultRules()
	}

	r := &Redactor{}
	for _, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("secrets: rule with empty name")
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("secrets: rule %s: %w", rule.Name, err)
		}
		lowered := make([]string, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			lowered[i] = strings.ToLower(kw)
		}
		r.rules = append(r.rules, compiledRule{Rule: rule, re: re, keywords: lowered})
	}

	if allow != nil {
		compiled, err := allow.compile()
		if err != nil {
			return nil, err
		}
		r.allowlist = compiled
	}
	return r, nil
}

// Redact scans content and replaces every match with the redaction mark.
func (r *Redactor) Redact(content string) *Result {
	result := &Result{Content: content, ByRule: make(map[string]int)}
	lowered := strings.ToLower(content)

	type span struct{ start, end int }
	var spans []span

	for _, rule := range r.rules {
		if len(rule.keywords) > 0 && !containsAny(lowered, rule.keywords) {
			continue
		}
		for _, m := range rule.re.FindAllStringIndex(content, -1) {
			if r.allowed(content[m[0]:m[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				Rule:     rule.Name,
				Describe: rule.Describe,
				Severity: rule.Severity,
				Line:     strings.Count(content[:m[0]], "\n") + 1,
				Start:    m[0],
				End:      m[1],
			})
			result.ByRule[rule.Name]++
			spans = append(spans, span{m[0], m[1]})
		}
	}

	if len(spans) == 0 {
		return result
	}

	// Merge overlaps, then rewrite back to front so offsets stay valid.
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	out := content
	for i := len(merged) - 1; i >= 0; i-- {
		out = out[:merged[i].start] + redactionMark + out[merged[i].end:]
	}
	result.Content = out
	return result
}

// Detect scans without rewriting the content.
func (r *Redactor) Detect(content string) []Finding {
	res := r.Redact(content)
	return res.Findings
}

func (r *Redactor) allowed(match string) bool {
	for _, re := range r.allowlist {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
