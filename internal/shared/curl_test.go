package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCurlCommand(t *testing.T) {
	tt := []struct {
		name       string
		curlCmd    string
		wantURL    string
		wantCookie string
		wantHeader map[string]string
		wantErr    bool
	}{
		{
			name:       "cookie in -H header",
			curlCmd:    `curl 'https://mp.weixin.qq.com/cgi-bin/home?token=123' -H 'Cookie: slave_sid=abc; slave_user=gh_1'`,
			wantURL:    "https://mp.weixin.qq.com/cgi-bin/home?token=123",
			wantCookie: "slave_sid=abc; slave_user=gh_1",
			wantHeader: map[string]string{},
		},
		{
			name:       "cookie in -b flag with double quotes",
			curlCmd:    `curl "https://mp.weixin.qq.com/" -b "data_ticket=t1" -H "Referer: https://mp.weixin.qq.com"`,
			wantURL:    "https://mp.weixin.qq.com/",
			wantCookie: "data_ticket=t1",
			wantHeader: map[string]string{"Referer": "https://mp.weixin.qq.com"},
		},
		{
			name:    "multiline command",
			curlCmd: "curl 'https://mp.weixin.qq.com/' \\\n  -H 'Accept: */*' \\\n  -b 'a=1'",
			wantURL: "https://mp.weixin.qq.com/",
			wantHeader: map[string]string{
				"Accept": "*/*",
			},
			wantCookie: "a=1",
		},
		{
			name:    "no headers",
			curlCmd: `curl https://example.com`,
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCurlCommand([]byte(tc.curlCmd))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got.URL != tc.wantURL {
				t.Errorf("URL = %q, want %q", got.URL, tc.wantURL)
			}
			if got.Cookie != tc.wantCookie {
				t.Errorf("Cookie = %q, want %q", got.Cookie, tc.wantCookie)
			}
			for k, v := range tc.wantHeader {
				if got.Headers[k] != v {
					t.Errorf("header %s = %q, want %q", k, got.Headers[k], v)
				}
			}
		})
	}
}

func TestParseCookieHeader(t *testing.T) {
	pairs := ParseCookieHeader("a=1; b = 2 ;; broken; =x; c=")
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d: %v", len(pairs), pairs)
	}
	if pairs[1].Name != "b" || pairs[1].Value != "2" {
		t.Errorf("unexpected second pair %+v", pairs[1])
	}
	if pairs[2].Name != "c" || pairs[2].Value != "" {
		t.Errorf("unexpected third pair %+v", pairs[2])
	}
}

func TestParseCurlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.sh")
	if err := os.WriteFile(path, []byte(`curl 'https://mp.weixin.qq.com/' -b 'x=y'`), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ParseCurlFile(path)
	if err != nil {
		t.Fatalf("ParseCurlFile() error = %v", err)
	}
	if len(got.Cookies()) != 1 {
		t.Errorf("expected one cookie, got %v", got.Cookies())
	}

	if _, err := ParseCurlFile(filepath.Join(t.TempDir(), "missing.sh")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewFingerprint(t *testing.T) {
	fp := NewFingerprint()
	if len(fp) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(fp))
	}
	for _, r := range fp {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("unexpected character %q in %s", r, fp)
		}
	}
	if GenerateID() == GenerateID() {
		t.Error("expected unique ids")
	}
}
