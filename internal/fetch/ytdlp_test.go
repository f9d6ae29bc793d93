package fetch

import (
	"path/filepath"
	"testing"
)

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func boolValue(p *bool) bool {
	return p != nil && *p
}

func TestCommandCommonFlags(t *testing.T) {
	y := NewYtDlp("", 0, 0, nil)
	dir := t.TempDir()

	for _, format := range []Format{FormatVideoAudio, FormatVideoOnly, FormatAudioOnly, FormatSubtitles} {
		cfg := y.command(Request{URL: "https://example.com/v", Format: format, Quality: QualityBest, OutputDir: dir}).GetFlagConfig()
		if got := strValue(cfg.Filesystem.Output); got != filepath.Join(dir, "%(title)s.%(ext)s") {
			t.Fatalf("%s: output = %q", format, got)
		}
		if !boolValue(cfg.Filesystem.RestrictFilenames) {
			t.Fatalf("%s: restrict filenames is not set", format)
		}
		if !boolValue(cfg.VideoSelection.NoPlaylist) {
			t.Fatalf("%s: no playlist is not set", format)
		}
		if !boolValue(cfg.VerbositySimulation.PrintJSON) {
			t.Fatalf("%s: print json is not set", format)
		}
	}
}

func TestCommandAudioOnly(t *testing.T) {
	y := NewYtDlp("", 0, 0, nil)
	cfg := y.command(Request{URL: "https://example.com/v", Format: FormatAudioOnly, Quality: QualityBest, OutputDir: t.TempDir()}).GetFlagConfig()

	if got := strValue(cfg.VideoFormat.Format); got != "bestaudio/best" {
		t.Fatalf("format = %q", got)
	}
	if !boolValue(cfg.PostProcessing.ExtractAudio) {
		t.Fatal("extract audio is not set")
	}
	if got := strValue(cfg.PostProcessing.AudioFormat); got != "mp3" {
		t.Fatalf("audio format = %q, want mp3", got)
	}
	if got := strValue(cfg.PostProcessing.AudioQuality); got != "192K" {
		t.Fatalf("audio quality = %q, want 192K", got)
	}
	if boolValue(cfg.Subtitle.WriteSubs) || boolValue(cfg.VerbositySimulation.SkipDownload) {
		t.Fatal("audio download must not request subtitles only")
	}
}

func TestCommandSubtitlesOnly(t *testing.T) {
	y := NewYtDlp("", 0, 0, nil)
	cfg := y.command(Request{URL: "https://example.com/v", Format: FormatSubtitles, Quality: QualityBest, OutputDir: t.TempDir()}).GetFlagConfig()

	if !boolValue(cfg.Subtitle.WriteSubs) || !boolValue(cfg.Subtitle.WriteAutoSubs) {
		t.Fatal("subtitle writing is not enabled")
	}
	if got := strValue(cfg.Subtitle.SubLangs); got != "en,en-US,en-GB" {
		t.Fatalf("subtitle languages = %q", got)
	}
	if got := strValue(cfg.PostProcessing.ConvertSubs); got != "srt" {
		t.Fatalf("subtitle conversion = %q, want srt", got)
	}
	if !boolValue(cfg.VerbositySimulation.SkipDownload) {
		t.Fatal("media download is not skipped")
	}
	if cfg.VideoFormat.Format != nil || boolValue(cfg.PostProcessing.ExtractAudio) {
		t.Fatal("subtitle download must not select a media format")
	}
}

func TestCommandVideoFormats(t *testing.T) {
	y := NewYtDlp("", 0, 0, nil)
	tests := []struct {
		format  Format
		quality string
	}{
		{format: FormatVideoAudio, quality: "720"},
		{format: FormatVideoOnly, quality: QualityBest},
	}
	for _, tt := range tests {
		cfg := y.command(Request{URL: "https://example.com/v", Format: tt.format, Quality: tt.quality, OutputDir: t.TempDir()}).GetFlagConfig()
		if got, want := strValue(cfg.VideoFormat.Format), formatSelector(tt.format, tt.quality); got != want {
			t.Fatalf("%s/%s: format = %q, want %q", tt.format, tt.quality, got, want)
		}
		if boolValue(cfg.PostProcessing.ExtractAudio) || boolValue(cfg.VerbositySimulation.SkipDownload) {
			t.Fatalf("%s: unexpected audio or subtitle flags", tt.format)
		}
	}
}
