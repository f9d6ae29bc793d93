package fetch

import (
	"context"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    Format
		wantErr bool
	}{
		{raw: "", want: FormatVideoAudio},
		{raw: "video+audio", want: FormatVideoAudio},
		{raw: " audio_only ", want: FormatAudioOnly},
		{raw: "video_only", want: FormatVideoOnly},
		{raw: "subtitles_only", want: FormatSubtitles},
		{raw: "flac", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseFormat(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFormat(%q) returned error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "", want: "best"},
		{raw: "BEST", want: "best"},
		{raw: "720", want: "720"},
		{raw: "1080p", want: "1080"},
		{raw: "0", wantErr: true},
		{raw: "-480", wantErr: true},
		{raw: "hd", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseQuality(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseQuality(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseQuality(%q) returned error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseQuality(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		format  Format
		quality string
		want    string
	}{
		{FormatVideoAudio, "best", "best[ext=mp4]/best"},
		{FormatVideoAudio, "720", "best[height<=720][ext=mp4]/best[height<=720]"},
		{FormatVideoOnly, "best", "best[vcodec!=none][acodec=none]/best"},
		{FormatVideoOnly, "480", "best[height<=480][vcodec!=none][acodec=none]"},
		{FormatAudioOnly, "720", "bestaudio/best"},
		{FormatSubtitles, "best", ""},
	}
	for _, tt := range tests {
		if got := formatSelector(tt.format, tt.quality); got != tt.want {
			t.Fatalf("formatSelector(%s, %s) = %q, want %q", tt.format, tt.quality, got, tt.want)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		p    Progress
		want int
	}{
		{Progress{DownloadedBytes: 0, TotalBytes: 100}, 0},
		{Progress{DownloadedBytes: 333, TotalBytes: 1000}, 33},
		{Progress{DownloadedBytes: 999, TotalBytes: 1000}, 99},
		{Progress{DownloadedBytes: 1000, TotalBytes: 1000}, 100},
		{Progress{DownloadedBytes: 1200, TotalBytes: 1000}, 100},
		{Progress{DownloadedBytes: 500}, UnknownProgressPercent},
	}
	for _, tt := range tests {
		if got := tt.p.Percent(); got != tt.want {
			t.Fatalf("Percent(%+v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestEmitterStopsAfterClose(t *testing.T) {
	ch := make(chan Progress, 2)
	em := &emitter{ch: ch}

	em.send(context.Background(), Progress{DownloadedBytes: 1, TotalBytes: 2, Title: "First"})
	em.close()
	em.send(context.Background(), Progress{DownloadedBytes: 2, TotalBytes: 2, Title: "Second"})

	if len(ch) != 1 {
		t.Fatalf("expected exactly one event before close, got %d", len(ch))
	}
	if em.lastTitle() != "Second" {
		t.Fatalf("lastTitle = %q, want Second", em.lastTitle())
	}
}
