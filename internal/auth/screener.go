package auth

import (
	"regexp"
	"strings"
)

var defaultDisposableDomains = []string{
	"tempmail.com", "guerrillamail.com", "mailinator.com",
	"10minutemail.com", "throwawaymail.com", "fakeinbox.com",
	"yopmail.com", "trashmail.com", "temp-mail.org",
	"sharklasers.com", "guerrillamail.net", "grr.la",
	"pokemail.net", "spam4.me", "disposableemail.org",
}

var suspiciousLocalPart = regexp.MustCompile(`(?i)^(test|fake|demo|temp|spam|admin|user)\d*@`)

// Verdict is the classification of a single address.
type Verdict struct {
	Disposable bool
	Suspicious bool
}

// LikelyFake reports whether either rule matched.
func (v Verdict) LikelyFake() bool {
	return v.Disposable || v.Suspicious
}

// Screener classifies email addresses against static disposable-domain and
// local-part rules. It is safe for concurrent use.
type Screener struct {
	domains map[string]struct{}
}

// NewScreener returns a screener using the built-in domain list plus extra.
func NewScreener(extraDomains ...string) *Screener {
	domains := make(map[string]struct{}, len(defaultDisposableDomains)+len(extraDomains))
	for _, d := range defaultDisposableDomains {
		domains[d] = struct{}{}
	}
	for _, d := range extraDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains[d] = struct{}{}
		}
	}
	return &Screener{domains: domains}
}

// IsDisposable matches the domain part case-insensitively.
func (s *Screener) IsDisposable(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	_, ok := s.domains[strings.ToLower(email[at+1:])]
	return ok
}

// HasSuspiciousPattern checks the local part against the blocked prefixes.
func (s *Screener) HasSuspiciousPattern(email string) bool {
	return suspiciousLocalPart.MatchString(email)
}

// IsLikelyFake is IsDisposable OR HasSuspiciousPattern.
func (s *Screener) IsLikelyFake(email string) bool {
	return s.Screen(email).LikelyFake()
}

// Screen returns both rule results.
func (s *Screener) Screen(email string) Verdict {
	email = strings.TrimSpace(email)
	return Verdict{
		Disposable: s.IsDisposable(email),
		Suspicious: s.HasSuspiciousPattern(email),
	}
}
