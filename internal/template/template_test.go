package template

import (
	"testing"
	"time"
)

func TestVariables(t *testing.T) {
	vars := Variables("https://www.twitch.tv/riketta", "123456789")

	if got := vars[PlaceholderURL]; got != "https://www.twitch.tv/riketta" {
		t.Errorf("{url} = %q", got)
	}
	if got := vars[PlaceholderSource]; got != "riketta" {
		t.Errorf("{source} = %q, want riketta", got)
	}
	if got := vars[PlaceholderTimestamp]; got != "123456789" {
		t.Errorf("{timestamp} = %q, want 123456789", got)
	}
}

func TestReplace_StreamlinkTemplate(t *testing.T) {
	tmpl := `streamlink --logfile "logs\{source}_{timestamp}.log" --output "streams\{author}_{time:%Y%m%d-%H%M%S}.mp4" --default-stream "1080p, 720p, best" --url {url}`
	want := `streamlink --logfile "logs\riketta_123456789.log" --output "streams\{author}_{time:%Y%m%d-%H%M%S}.mp4" --default-stream "1080p, 720p, best" --url https://www.twitch.tv/riketta`

	got := Replace(tmpl, Variables("https://www.twitch.tv/riketta", "123456789"))
	if got != want {
		t.Errorf("Replace() =\n  %s\nwant\n  %s", got, want)
	}
}

func TestSource(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.twitch.tv/riketta", "riketta"},
		{"https://www.twitch.tv/riketta/", "riketta"},
		{"https://example.com/live/stream.m3u8", "stream.m3u8"},
		{"riketta", "riketta"},
		{"", ""},
		{"/", ""},
		{"..", ""},
	}

	for _, tt := range tests {
		if got := Source(tt.url); got != tt.want {
			t.Errorf("Source(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestTimestamp_TruncatesToHour(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 21, 47, 13, 500, time.UTC)
	if got := Timestamp(ts); got != "20240307-2100" {
		t.Errorf("Timestamp() = %q, want 20240307-2100", got)
	}
}

func TestExpandAt(t *testing.T) {
	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
	got := ExpandAt("rec --out {source}_{timestamp}.ts {url} {unknown}", "https://x.tv/chan", now)
	want := "rec --out chan_20240102-0300.ts https://x.tv/chan {unknown}"
	if got != want {
		t.Errorf("ExpandAt() = %q, want %q", got, want)
	}
}

func TestExpand_NoPlaceholders(t *testing.T) {
	if got := Expand("sleep 60", "https://x.tv/chan"); got != "sleep 60" {
		t.Errorf("Expand() = %q, want unchanged", got)
	}
}
