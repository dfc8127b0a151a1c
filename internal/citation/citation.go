// Package citation implements the citation gate: allow-list filtering of citations against
// trusted domains, declarative-claim detection and the evidence-lock enforcement policy.
package citation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// DefaultTrustedDomains is the allow-list of domains whose pages may back a claim.
var DefaultTrustedDomains = []string{
	"cdc.gov",
	"nih.gov",
	"medlineplus.gov",
	"fda.gov",
	"who.int",
	"nhs.uk",
	"mayoclinic.org",
	"clevelandclinic.org",
	"hopkinsmedicine.org",
	"aafp.org",
	"aaos.org",
	"aad.org",
	"healthychildren.org",
	"redcross.org",
}

// sentenceBreak matches a sentence terminator followed by whitespace.
var sentenceBreak = regexp.MustCompile(`[.!?]\s`)

// NormalizeHost returns the lowercased hostname of rawURL without a leading "www.".
// ok is false when the URL cannot be parsed or has no host.
func NormalizeHost(rawURL string) (host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host = strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www."), true
}

// Key returns the identity of a citation URL: normalized host plus path and query.
func Key(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		return host + path + "?" + u.RawQuery, true
	}
	return host + path, true
}

// HostMatches reports whether host equals one of domains or is a subdomain of one.
func HostMatches(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// FilterAllowed keeps the citations whose URL parses and whose host suffix-matches one of
// domains, dropping duplicates by normalized URL. The first occurrence wins and is kept as
// given. FilterAllowed is idempotent.
func FilterAllowed(list []models.Citation, domains []string) []models.Citation {
	out := make([]models.Citation, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		host, ok := NormalizeHost(c.URL)
		if !ok || !HostMatches(host, domains) {
			continue
		}
		key, _ := Key(c.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// IsDeclarative reports whether text asserts something that needs a citation, as opposed
// to being a pure question.
func IsDeclarative(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if !strings.HasSuffix(t, "?") {
		return true
	}
	return sentenceBreak.MatchString(t)
}
