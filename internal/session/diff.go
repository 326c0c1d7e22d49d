package session

import "github.com/desertthunder/mpsync/internal/models"

// CookieKey returns the composite identity of a cookie. An empty path is treated as "/".
func CookieKey(c models.Cookie) string {
	return c.Domain + "|" + cookiePath(c.Path) + "|" + c.Name
}

func cookiePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func sameExpiration(a, b *float64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

// DiffCookies classifies current cookies as added or modified relative to baseline and
// reports baseline-only cookies as removed. Output order follows the input order.
// When a key repeats within either list the last occurrence wins.
func DiffCookies(current, baseline []models.Cookie) models.CookieDiff {
	diff := models.CookieDiff{
		Added:    []models.Cookie{},
		Modified: []models.Cookie{},
		Removed:  []models.CookieRef{},
	}

	base := make(map[string]models.Cookie, len(baseline))
	for _, c := range baseline {
		base[CookieKey(c)] = c
	}

	latest := make(map[string]models.Cookie, len(current))
	order := make([]string, 0, len(current))
	for _, c := range current {
		key := CookieKey(c)
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = c
	}

	for _, key := range order {
		c := latest[key]
		prev, ok := base[key]
		switch {
		case !ok:
			diff.Added = append(diff.Added, c)
		case prev.Value != c.Value || !sameExpiration(prev.ExpirationDate, c.ExpirationDate):
			diff.Modified = append(diff.Modified, c)
		}
	}

	emitted := make(map[string]bool)
	for _, c := range baseline {
		key := CookieKey(c)
		if _, ok := latest[key]; ok || emitted[key] {
			continue
		}
		emitted[key] = true
		diff.Removed = append(diff.Removed, models.CookieRef{Domain: c.Domain, Path: cookiePath(c.Path), Name: c.Name})
	}
	return diff
}

// DiffLocalStorage compares two key/value maps by presence and string equality.
func DiffLocalStorage(current, baseline map[string]string) models.LocalStorageDiff {
	diff := models.LocalStorageDiff{
		Added:    map[string]string{},
		Modified: map[string]string{},
		Removed:  []string{},
	}
	for k, v := range current {
		prev, ok := baseline[k]
		switch {
		case !ok:
			diff.Added[k] = v
		case prev != v:
			diff.Modified[k] = v
		}
	}
	for k := range baseline {
		if _, ok := current[k]; !ok {
			diff.Removed = append(diff.Removed, k)
		}
	}
	return diff
}

// DiffAuthData diffs both halves of a snapshot. A nil baseline is treated as empty.
func DiffAuthData(current models.AuthSnapshot, baseline *models.AuthSnapshot) models.AuthDiff {
	var base models.AuthSnapshot
	if baseline != nil {
		base = *baseline
	}
	return models.AuthDiff{
		Cookies:      DiffCookies(current.Cookies, base.Cookies),
		LocalStorage: DiffLocalStorage(current.LocalStorage, base.LocalStorage),
	}
}

// HasChanges reports whether any part of the diff is non-empty.
func HasChanges(d models.AuthDiff) bool {
	return len(d.Cookies.Added) > 0 ||
		len(d.Cookies.Modified) > 0 ||
		len(d.Cookies.Removed) > 0 ||
		len(d.LocalStorage.Added) > 0 ||
		len(d.LocalStorage.Modified) > 0 ||
		len(d.LocalStorage.Removed) > 0
}
