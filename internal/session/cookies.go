package session

import (
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/desertthunder/mpsync/internal/models"
)

// RequiredLoginCookies must all be present for a platform session to be usable.
var RequiredLoginCookies = []string{"slave_user", "slave_sid", "data_ticket", "data_bizuin"}

// authKeywords selects the local storage keys worth persisting.
var authKeywords = []string{
	"token", "session", "auth", "user", "jwt", "login",
	"passport", "sso", "csrf", "ticket", "credential",
}

// ExtractMainDomain returns the registrable domain of a host or URL, e.g. mp.weixin.qq.com → qq.com.
// Hosts unknown to the public suffix list fall back to their last two labels.
func ExtractMainDomain(hostOrURL string) string {
	host := hostOrURL
	if strings.Contains(hostOrURL, "://") {
		u, err := url.Parse(hostOrURL)
		if err != nil {
			return ""
		}
		host = u.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}

// MatchesDomain reports whether cookieDomain is domain or one of its subdomains.
// Leading dots on either side are ignored.
func MatchesDomain(cookieDomain, domain string) bool {
	c := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	if d == "" {
		return true
	}
	return c == d || strings.HasSuffix(c, "."+d)
}

// FilterCookies keeps only the cookies belonging to domain.
func FilterCookies(cookies []models.Cookie, domain string) []models.Cookie {
	if domain == "" {
		return cookies
	}
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if MatchesDomain(c.Domain, domain) {
			out = append(out, c)
		}
	}
	return out
}

// IsURLMatchingAccountDomain reports whether two URLs share a registrable domain.
func IsURLMatchingAccountDomain(currentURL, accountURL string) bool {
	a, b := ExtractMainDomain(currentURL), ExtractMainDomain(accountURL)
	return a != "" && a == b
}

// FilterAuthKeys keeps local storage entries whose key contains an auth keyword (case-insensitive).
func FilterAuthKeys(data map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range data {
		lower := strings.ToLower(k)
		for _, kw := range authKeywords {
			if strings.Contains(lower, kw) {
				out[k] = v
				break
			}
		}
	}
	return out
}

// HasRequiredCookies reports whether every named cookie is present.
func HasRequiredCookies(cookies []models.Cookie, names ...string) bool {
	present := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		present[c.Name] = true
	}
	for _, n := range names {
		if !present[n] {
			return false
		}
	}
	return true
}

// AreCookiesExpired reports whether any cookie with an expiration lies in the past.
func AreCookiesExpired(cookies []models.Cookie, now time.Time) bool {
	ts := float64(now.UnixMilli()) / 1000
	for _, c := range cookies {
		if c.ExpirationDate != nil && *c.ExpirationDate > 0 && *c.ExpirationDate < ts {
			return true
		}
	}
	return false
}

// CookiesToString renders cookies as a Cookie header value.
func CookiesToString(cookies []models.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// GetCookieValue returns the value of the first cookie with the given name.
func GetCookieValue(cookies []models.Cookie, name string) (string, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// CookieURL builds the URL a cookie store needs to set a cookie.
func CookieURL(c models.Cookie) string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimPrefix(c.Domain, ".") + cookiePath(c.Path)
}

// TokenFromURL returns the token query parameter of a platform URL.
func TokenFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}
