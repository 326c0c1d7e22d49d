// Utilities for importing platform credentials from a browser "copy as cURL" command.
package shared

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRegex = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRegex = regexp.MustCompile(`-b\s+'([^']+)'|-b\s+"([^"]+)"`)
	curlURLRegex    = regexp.MustCompile(`(https?://[^\s'"]+)`)
)

// CurlHeaders represents parsed headers, cookies and the request URL from a cURL command.
type CurlHeaders struct {
	URL     string
	Headers map[string]string
	Cookie  string
}

// CookiePair is one name=value entry of a Cookie header.
type CookiePair struct {
	Name  string
	Value string
}

// ParseCurlFile reads a file containing a cURL command and extracts headers.
func ParseCurlFile(filepath string) (*CurlHeaders, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}

	return ParseCurlCommand(content)
}

// ParseCurlCommand parses a cURL command string and extracts the URL, headers and cookie string.
func ParseCurlCommand(data []byte) (*CurlHeaders, error) {
	curlCmd := string(data)
	curlCmd = strings.ReplaceAll(curlCmd, "\\\n", " ")
	curlCmd = strings.ReplaceAll(curlCmd, "\\", "")

	headers := make(map[string]string)
	var cookie string

	matches := curlHeaderRegex.FindAllStringSubmatch(curlCmd, -1)
	for _, match := range matches {
		headerLine := firstGroup(match)
		parts := strings.SplitN(headerLine, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if strings.EqualFold(key, "cookie") {
			cookie = value
			continue
		}
		headers[key] = value
	}

	if cookieMatches := curlCookieRegex.FindStringSubmatch(curlCmd); len(cookieMatches) > 1 {
		cookie = firstGroup(cookieMatches)
	}

	if len(headers) == 0 && cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}

	var url string
	if m := curlURLRegex.FindStringSubmatch(curlCmd); len(m) > 1 {
		url = m[1]
	}

	return &CurlHeaders{URL: url, Headers: headers, Cookie: cookie}, nil
}

// Cookies splits the parsed Cookie header into ordered pairs.
func (c *CurlHeaders) Cookies() []CookiePair {
	return ParseCookieHeader(c.Cookie)
}

// ParseCookieHeader splits a "a=1; b=2" header into pairs, skipping malformed entries.
func ParseCookieHeader(header string) []CookiePair {
	var pairs []CookiePair
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		pairs = append(pairs, CookiePair{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return pairs
}

func firstGroup(match []string) string {
	if match[1] != "" {
		return match[1]
	}
	return match[2]
}
