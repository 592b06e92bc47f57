package helpers

import (
	"strings"
	"time"

	"github.com/hako/durafmt"
)

func AppendSlashUrl(url string) string {
	if url == "" {
		return "/"
	}
	if !strings.HasSuffix(url, "/") {
		return url + "/"
	}
	return url
}

func MakeUrlWithPort(url string, port string) string {
	if port == "" {
		return AppendSlashUrl(url)
	}
	return AppendSlashUrl(url + ":" + port)
}

// Age renders how long ago t was, e.g. "3 minutes 12 seconds".
func Age(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return durafmt.Parse(time.Since(t).Truncate(time.Second)).LimitFirstN(2).String()
}

// LinkIndicator marks whether a parameter is currently supplied by a connection.
func LinkIndicator(linked bool) string {
	if linked {
		return "[LINKED]"
	}
	return "[VALUE]"
}

// Shorten cuts s to at most limit runes, ending in "..." when cut.
func Shorten(s string, limit int) string {
	r := []rune(s)
	if limit <= 3 || len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
