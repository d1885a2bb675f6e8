package seeder

import (
	"encoding/json"
	"strings"
	"unicode"
)

const magnetPrefix = "magnet:?"

// ExtractMagnet pulls a magnet address out of one line of seed process
// output. Structured output is tried first: a JSON object carrying the
// address under a (possibly nested) magnetURI field, the format printed by
// webtorrent-style executables. Plain-text output falls back to a substring
// scan for a magnet-prefixed token. Both branches are load-bearing; the
// executable's output format is not under our control.
func ExtractMagnet(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "{") {
		var doc map[string]any
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			if magnet, ok := findMagnetField(doc); ok {
				return magnet, true
			}
		}
	}

	return scanMagnetToken(trimmed)
}

func findMagnetField(node map[string]any) (string, bool) {
	for key, value := range node {
		switch v := value.(type) {
		case string:
			if strings.EqualFold(key, "magnetURI") || strings.EqualFold(key, "magnet") {
				if strings.HasPrefix(v, magnetPrefix) {
					return v, true
				}
			}
		case map[string]any:
			if magnet, ok := findMagnetField(v); ok {
				return magnet, true
			}
		}
	}
	return "", false
}

func scanMagnetToken(line string) (string, bool) {
	idx := strings.Index(line, magnetPrefix)
	if idx < 0 {
		return "", false
	}
	rest := line[idx:]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\''
	})
	if end < 0 {
		end = len(rest)
	}
	magnet := rest[:end]
	if magnet == magnetPrefix {
		return "", false
	}
	return magnet, true
}
