// Package fetch は外部の取得・変換サービス（yt-dlp）との境界を提供します。
package fetch

import (
	"fmt"
	"strconv"
	"strings"
)

// Format は要求された出力形式です。
type Format string

const (
	FormatVideoAudio Format = "video+audio"
	FormatVideoOnly  Format = "video_only"
	FormatAudioOnly  Format = "audio_only"
	FormatSubtitles  Format = "subtitles_only"
)

// QualityBest は画質指定なし（最高画質）を表します。
const QualityBest = "best"

var (
	audioExtensions    = []string{".mp3", ".m4a", ".webm", ".ogg"}
	subtitleExtensions = []string{".srt", ".vtt", ".ass"}
	videoExtensions    = []string{".mp4", ".webm", ".mkv", ".avi", ".mov"}
)

// ParseFormat はフォーム値を Format に変換します。空文字は video+audio として扱います。
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.TrimSpace(raw)); f {
	case "":
		return FormatVideoAudio, nil
	case FormatVideoAudio, FormatVideoOnly, FormatAudioOnly, FormatSubtitles:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", raw)
	}
}

// ParseQuality は best または正の整数（縦解像度）を受け付けます。
func ParseQuality(raw string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(raw))
	if q == "" || q == QualityBest {
		return QualityBest, nil
	}
	height, err := strconv.Atoi(strings.TrimSuffix(q, "p"))
	if err != nil || height <= 0 {
		return "", fmt.Errorf("unsupported quality: %q", raw)
	}
	return strconv.Itoa(height), nil
}

// Extensions は形式ごとに想定される成果物の拡張子を優先順に返します。
func (f Format) Extensions() []string {
	switch f {
	case FormatAudioOnly:
		return audioExtensions
	case FormatSubtitles:
		return subtitleExtensions
	default:
		return videoExtensions
	}
}

func (f Format) String() string {
	return string(f)
}
