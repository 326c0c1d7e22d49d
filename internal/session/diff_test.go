package session

import (
	"slices"
	"testing"

	"github.com/desertthunder/mpsync/internal/models"
)

func ptr(f float64) *float64 { return &f }

func TestCookieKey(t *testing.T) {
	tests := []struct {
		name   string
		cookie models.Cookie
		want   string
	}{
		{"full", models.Cookie{Domain: ".qq.com", Path: "/cgi", Name: "sid"}, ".qq.com|/cgi|sid"},
		{"default path", models.Cookie{Domain: "a.com", Name: "x"}, "a.com|/|x"},
		{"missing domain", models.Cookie{Name: "x"}, "|/|x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CookieKey(tt.cookie); got != tt.want {
				t.Errorf("CookieKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiffCookies(t *testing.T) {
	t.Run("modified value", func(t *testing.T) {
		current := []models.Cookie{{Domain: "a.com", Path: "/", Name: "x", Value: "1"}}
		baseline := []models.Cookie{{Domain: "a.com", Path: "/", Name: "x", Value: "2"}}

		diff := DiffCookies(current, baseline)
		if len(diff.Modified) != 1 || diff.Modified[0].Value != "1" {
			t.Fatalf("expected one modified cookie with value 1, got %+v", diff.Modified)
		}
		if len(diff.Added) != 0 || len(diff.Removed) != 0 {
			t.Errorf("expected no added/removed, got %+v", diff)
		}
	})

	t.Run("expiration change", func(t *testing.T) {
		current := []models.Cookie{{Domain: "a.com", Name: "x", Value: "1", ExpirationDate: ptr(200)}}
		baseline := []models.Cookie{{Domain: "a.com", Name: "x", Value: "1", ExpirationDate: ptr(100)}}
		if diff := DiffCookies(current, baseline); len(diff.Modified) != 1 {
			t.Errorf("expected modified on expiration change, got %+v", diff)
		}

		baseline[0].ExpirationDate = nil
		if diff := DiffCookies(current, baseline); len(diff.Modified) != 1 {
			t.Errorf("expected modified when baseline had no expiration, got %+v", diff)
		}
	})

	t.Run("added and removed", func(t *testing.T) {
		current := []models.Cookie{
			{Domain: "a.com", Name: "keep", Value: "v"},
			{Domain: "a.com", Name: "new", Value: "n"},
		}
		baseline := []models.Cookie{
			{Domain: "a.com", Path: "/", Name: "keep", Value: "v"},
			{Domain: "b.com", Name: "gone", Value: "secret"},
		}

		diff := DiffCookies(current, baseline)
		if len(diff.Added) != 1 || diff.Added[0].Name != "new" {
			t.Errorf("Added = %+v", diff.Added)
		}
		if len(diff.Modified) != 0 {
			t.Errorf("Modified = %+v", diff.Modified)
		}
		want := []models.CookieRef{{Domain: "b.com", Path: "/", Name: "gone"}}
		if !slices.Equal(diff.Removed, want) {
			t.Errorf("Removed = %+v, want %+v", diff.Removed, want)
		}
	})

	t.Run("same list is empty", func(t *testing.T) {
		list := []models.Cookie{
			{Domain: "a.com", Name: "x", Value: "1", ExpirationDate: ptr(5)},
			{Domain: ".a.com", Path: "/p", Name: "y", Value: "2"},
		}
		diff := DiffCookies(list, list)
		if len(diff.Added)+len(diff.Modified)+len(diff.Removed) != 0 {
			t.Errorf("expected empty diff, got %+v", diff)
		}
	})

	t.Run("duplicate keys resolve last wins", func(t *testing.T) {
		tests := []struct {
			name         string
			current      []models.Cookie
			baseline     []models.Cookie
			wantModified string
		}{
			{
				name: "duplicate in current",
				current: []models.Cookie{
					{Domain: "a.com", Name: "x", Value: "stale"},
					{Domain: "a.com", Name: "x", Value: "fresh"},
				},
				baseline:     []models.Cookie{{Domain: "a.com", Name: "x", Value: "old"}},
				wantModified: "fresh",
			},
			{
				name:    "duplicate in baseline",
				current: []models.Cookie{{Domain: "a.com", Name: "x", Value: "new"}},
				baseline: []models.Cookie{
					{Domain: "a.com", Name: "x", Value: "new"},
					{Domain: "a.com", Name: "x", Value: "old"},
				},
				wantModified: "new",
			},
			{
				name: "duplicates on both sides",
				current: []models.Cookie{
					{Domain: "a.com", Name: "x", Value: "old"},
					{Domain: "a.com", Name: "x", Value: "new"},
				},
				baseline: []models.Cookie{
					{Domain: "a.com", Name: "x", Value: "new"},
					{Domain: "a.com", Name: "x", Value: "old"},
				},
				wantModified: "new",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				diff := DiffCookies(tt.current, tt.baseline)
				if len(diff.Modified) != 1 || diff.Modified[0].Value != tt.wantModified {
					t.Fatalf("expected one modified cookie with value %q, got %+v", tt.wantModified, diff.Modified)
				}
				if len(diff.Added) != 0 || len(diff.Removed) != 0 {
					t.Errorf("expected no added/removed, got %+v", diff)
				}
			})
		}

		same := []models.Cookie{
			{Domain: "a.com", Name: "x", Value: "old"},
			{Domain: "a.com", Name: "x", Value: "new"},
		}
		if diff := DiffCookies(same, same); len(diff.Modified) != 0 {
			t.Errorf("expected a list with duplicates to match itself, got %+v", diff.Modified)
		}
	})

	t.Run("partitions without overlap", func(t *testing.T) {
		current := []models.Cookie{
			{Domain: "a.com", Name: "a", Value: "1"},
			{Domain: "a.com", Name: "b", Value: "2"},
			{Domain: "a.com", Name: "c", Value: "3"},
		}
		baseline := []models.Cookie{
			{Domain: "a.com", Name: "b", Value: "2"},
			{Domain: "a.com", Name: "c", Value: "old"},
			{Domain: "a.com", Name: "d", Value: "4"},
		}
		diff := DiffCookies(current, baseline)

		seen := map[string]int{}
		for _, c := range diff.Added {
			seen[CookieKey(c)]++
		}
		for _, c := range diff.Modified {
			seen[CookieKey(c)]++
		}
		for _, r := range diff.Removed {
			seen[r.Domain+"|"+r.Path+"|"+r.Name]++
		}
		for key, n := range seen {
			if n != 1 {
				t.Errorf("key %s classified %d times", key, n)
			}
		}
		if len(seen) != 3 {
			t.Errorf("expected 3 changed keys (a added, c modified, d removed), got %v", seen)
		}
	})
}

func TestDiffLocalStorage(t *testing.T) {
	current := map[string]string{"token": "new", "user": "u", "same": "s"}
	baseline := map[string]string{"token": "old", "same": "s", "stale": "x"}

	diff := DiffLocalStorage(current, baseline)
	if diff.Added["user"] != "u" || len(diff.Added) != 1 {
		t.Errorf("Added = %v", diff.Added)
	}
	if diff.Modified["token"] != "new" || len(diff.Modified) != 1 {
		t.Errorf("Modified = %v", diff.Modified)
	}
	if !slices.Equal(diff.Removed, []string{"stale"}) {
		t.Errorf("Removed = %v", diff.Removed)
	}
}

func TestDiffAuthData(t *testing.T) {
	snapshot := models.AuthSnapshot{
		Cookies:      []models.Cookie{{Domain: "a.com", Name: "x", Value: "1"}},
		LocalStorage: map[string]string{"token": "t"},
	}

	t.Run("nil baseline adds everything", func(t *testing.T) {
		diff := DiffAuthData(snapshot, nil)
		if len(diff.Cookies.Added) != 1 || len(diff.LocalStorage.Added) != 1 {
			t.Errorf("expected everything added, got %+v", diff)
		}
		if !HasChanges(diff) {
			t.Error("expected changes")
		}
	})

	t.Run("identical snapshot has no changes", func(t *testing.T) {
		if HasChanges(DiffAuthData(snapshot, &snapshot)) {
			t.Error("expected no changes for identical snapshot")
		}
	})

	t.Run("empty snapshots", func(t *testing.T) {
		if HasChanges(DiffAuthData(models.AuthSnapshot{}, nil)) {
			t.Error("expected no changes for empty snapshots")
		}
	})
}
