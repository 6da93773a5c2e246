package pty

import (
	"regexp"
)

// Patterns that indicate an in-container program wants a browser opened.
// OPEN_URL: lines come from the BROWSER env override injected at container
// create.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:xdg-open|open|start)\s+(https?://[^\s'"]+)`),
	regexp.MustCompile(`OPEN_URL:\s*(https?://[^\s'"]+)`),
	regexp.MustCompile(`Opening\s+(https?://[^\s'"]+)`),
	regexp.MustCompile(`Visit:\s*(https?://[^\s'"]+)`),
	regexp.MustCompile(`View at:\s*(https?://[^\s'"]+)`),
	regexp.MustCompile(`Browse to:\s*(https?://[^\s'"]+)`),
}

var openURLLineRe = regexp.MustCompile(`OPEN_URL:\s*(https?://[^\s'"]+)`)

// DetectURLs scans one outbound terminal chunk for browser-open requests.
// It returns the detected URLs and the chunk to pass through, with the
// OPEN_URL form rewritten to an informational line.
func DetectURLs(chunk string) (urls []string, passthrough string) {
	seen := make(map[string]bool)
	for _, re := range urlPatterns {
		for _, match := range re.FindAllStringSubmatch(chunk, -1) {
			url := match[1]
			if !seen[url] {
				seen[url] = true
				urls = append(urls, url)
			}
		}
	}

	passthrough = openURLLineRe.ReplaceAllString(chunk, "[INFO] Opening in browser: $1")
	return urls, passthrough
}
