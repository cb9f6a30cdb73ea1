// Package template fills metadata placeholders into a capture command line.
package template

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Placeholders understood by Expand. Anything else in braces is left alone,
// so tool-specific placeholders such as streamlink's {author} survive.
const (
	PlaceholderURL       = "{url}"
	PlaceholderSource    = "{source}"
	PlaceholderTimestamp = "{timestamp}"
)

// TimestampLayout renders the hour a capture was started in.
const TimestampLayout = "20060102-1504"

// Expand substitutes the placeholders of tmpl for the given stream URL using
// the current local time.
func Expand(tmpl, streamURL string) string {
	return ExpandAt(tmpl, streamURL, time.Now())
}

// ExpandAt is Expand with an explicit clock.
func ExpandAt(tmpl, streamURL string, now time.Time) string {
	return Replace(tmpl, Variables(streamURL, Timestamp(now)))
}

// Variables returns the placeholder values for a stream URL.
func Variables(streamURL, timestamp string) map[string]string {
	return map[string]string{
		PlaceholderURL:       streamURL,
		PlaceholderSource:    Source(streamURL),
		PlaceholderTimestamp: timestamp,
	}
}

// Replace performs a plain find/replace of every key in vars. Keys are applied
// in sorted order so the result does not depend on map iteration.
func Replace(s string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s = strings.ReplaceAll(s, k, vars[k])
	}
	return s
}

// Source returns the last path element of a stream URL, e.g. the channel
// name of https://www.twitch.tv/riketta. It is empty when there is none.
func Source(streamURL string) string {
	base := path.Base(streamURL)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}

// Timestamp formats t truncated to the start of its hour.
func Timestamp(t time.Time) string {
	hour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	return hour.Format(TimestampLayout)
}
