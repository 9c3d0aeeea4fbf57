// Package sanitize masks sensitive material in device command output
// before it leaves the collection boundary. Rules are declarative
// (pattern, replacement, category) entries; applying the full table is
// idempotent because no placeholder ever matches another rule.
package sanitize

import (
	"regexp"
	"strings"
)

// Category identifies the class of sensitive token a rule masks.
type Category string

const (
	CategoryCredential      Category = "credential"
	CategoryCommunityString Category = "community-string"
	CategoryPublicAddress   Category = "public-address"
	CategoryHardwareAddress Category = "hardware-address"
)

// Fixed placeholders. None of them re-matches a rule pattern with a
// different result, which is what makes re-sanitizing a no-op.
const (
	PlaceholderPassword  = "<HIDDEN_PASSWORD>"
	PlaceholderSecret    = "<HIDDEN_SECRET>"
	PlaceholderCommunity = "<HIDDEN_COMMUNITY>"
	PlaceholderPublicIP  = "<MASKED_PUBLIC_IP>"
	PlaceholderMAC       = "<MASKED_MAC>"
)

// Rule is one masking rule. Template is regexp expansion syntax ($1
// etc) applied to every match. Rewrite, when set, takes precedence and
// maps each match to its replacement; it carries the cases where the
// replacement depends on the match itself.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
	Template string
	Rewrite  func(match string) string
}

// Result is sanitized text plus the categories whose rules actually
// changed something. Re-applying the sanitizer to Result.Text yields
// the same text and no triggered categories.
type Result struct {
	Text      string     `json:"text"`
	Triggered []Category `json:"triggered"`
}

// Sanitizer applies an ordered rule table. Each category is evaluated
// in one pass and the categories cover disjoint token classes, so the
// table order is fixed for readability, not correctness.
type Sanitizer struct {
	rules []Rule
}

// New returns a Sanitizer with the default rule table.
func New() *Sanitizer {
	return &Sanitizer{rules: DefaultRules()}
}

// credentialPattern covers every credential line shape in one scan.
// Alternatives are keyed by distinct leading keywords, so for any
// start position at most one alternative can match and evaluation
// order cannot change the outcome. The encrypted form swallows an
// optional encoding tag: its match starts at `encrypted`, left of the
// generic `password \d+ \S+` start, so it must consume the whole
// `encrypted password 7 token` line or the token would survive.
var credentialPattern = regexp.MustCompile(
	`(username \S+ privilege \d+ secret \d+) \S+` +
		`|(encrypted password)(?: \d+)? \S+` +
		`|(password|secret) \d+ \S+`)

// DefaultRules is the standard table: credential lines, SNMP community
// strings, public IPv4 literals, and hardware addresses in both the
// dot-grouped and colon-grouped form.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryCredential,
			Pattern:  credentialPattern,
			Rewrite:  rewriteCredential,
		},
		{
			Category: CategoryCommunityString,
			Pattern:  regexp.MustCompile(`(snmp-server community) \S+`),
			Template: "$1 " + PlaceholderCommunity,
		},
		{
			// Every IPv4 literal is a candidate; private-range
			// literals are kept. RE2 has no negative lookahead, so
			// the range test lives in Rewrite instead of the pattern.
			Category: CategoryPublicAddress,
			Pattern:  regexp.MustCompile(`\b\d{1,3}\.(?:\d{1,3}\.){2}\d{1,3}\b`),
			Rewrite: func(match string) string {
				if isPrivateIPv4(match) {
					return match
				}
				return PlaceholderPublicIP
			},
		},
		{
			Category: CategoryHardwareAddress,
			Pattern:  regexp.MustCompile(`([0-9A-Fa-f]{4}\.){2}[0-9A-Fa-f]{4}`),
			Template: PlaceholderMAC,
		},
		{
			Category: CategoryHardwareAddress,
			Pattern:  regexp.MustCompile(`(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}`),
			Template: PlaceholderMAC,
		},
	}
}

func rewriteCredential(match string) string {
	m := credentialPattern.FindStringSubmatch(match)
	switch {
	case m[1] != "":
		return m[1] + " " + PlaceholderSecret
	case m[2] != "":
		return m[2] + " " + PlaceholderPassword
	default:
		return m[3] + " " + PlaceholderPassword
	}
}

// Apply runs the full rule table over text. It never fails; text with
// no matches passes through unchanged. A category is reported as
// triggered only when its rules changed the text, so sanitizing
// already-sanitized input reports nothing.
func (s *Sanitizer) Apply(text string) Result {
	out := text
	var triggered []Category
	seen := make(map[Category]bool, len(s.rules))

	for _, rule := range s.rules {
		next := rule.apply(out)
		if next != out && !seen[rule.Category] {
			seen[rule.Category] = true
			triggered = append(triggered, rule.Category)
		}
		out = next
	}

	return Result{Text: out, Triggered: triggered}
}

func (r Rule) apply(text string) string {
	if r.Rewrite != nil {
		return r.Pattern.ReplaceAllStringFunc(text, r.Rewrite)
	}
	return r.Pattern.ReplaceAllString(text, r.Template)
}

// isPrivateIPv4 reports whether an IPv4 literal sits inside
// 10.0.0.0/8, 172.16.0.0-172.31.255.255, or 192.168.0.0/16. The test
// is octet-textual on purpose: the boundary is an exact prefix match
// on the written form, so `172.32.1.1` and `010.1.1.1` count as
// public while `172.16.0.1` is private.
func isPrivateIPv4(addr string) bool {
	if strings.HasPrefix(addr, "10.") || strings.HasPrefix(addr, "192.168.") {
		return true
	}
	rest, ok := strings.CutPrefix(addr, "172.")
	if !ok {
		return false
	}
	second, _, ok := strings.Cut(rest, ".")
	if !ok || len(second) != 2 {
		return false
	}
	switch second[0] {
	case '1':
		return second[1] >= '6' && second[1] <= '9'
	case '2':
		return true
	case '3':
		return second[1] == '0' || second[1] == '1'
	}
	return false
}
