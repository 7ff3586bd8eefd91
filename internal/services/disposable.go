package services

import "strings"

var disposableDomains = []string{
	"10minutemail.com",
	"20minutemail.com",
	"guerrillamail.com",
	"guerrillamailblock.com",
	"mailinator.com",
	"maildrop.cc",
	"yopmail.com",
	"yopmail.net",
	"yopmail.fr",
	"fakeinbox.com",
	"getnada.com",
	"inboxbear.com",
	"inboxkitten.com",
	"spamgourmet.com",
	"sharklasers.com",
	"trashmail.com",
	"trashmail.de",
	"temp-mail.org",
	"tempmail.net",
	"tempmailo.com",
	"throwawaymail.com",
	"mintemail.com",
}

// DomainPolicy rejects disposable mail domains. Addresses on the allowlist
// always pass.
type DomainPolicy struct {
	blocked   map[string]struct{}
	allowlist map[string]struct{}
}

// NewDomainPolicy extends the built-in block list with extra domains. Both
// lists are matched case-insensitively.
func NewDomainPolicy(extra, allowlist []string) *DomainPolicy {
	p := &DomainPolicy{
		blocked:   make(map[string]struct{}, len(disposableDomains)+len(extra)),
		allowlist: make(map[string]struct{}, len(allowlist)),
	}
	for _, d := range disposableDomains {
		p.blocked[d] = struct{}{}
	}
	for _, d := range extra {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			p.blocked[d] = struct{}{}
		}
	}
	for _, e := range allowlist {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p.allowlist[e] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether email may submit the form. Subdomains of a blocked
// domain are blocked too.
func (p *DomainPolicy) Allowed(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := p.allowlist[email]; ok {
		return true
	}
	domain := parseDomain(email)
	if domain == "" {
		return false
	}
	for d := domain; d != ""; {
		if _, ok := p.blocked[d]; ok {
			return false
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return true
}

func parseDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.TrimSuffix(email[at+1:], ".")
}
