package fetch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	nonWordPattern   = regexp.MustCompile(`[^\w\s-]`)
	separatorPattern = regexp.MustCompile(`[-_\s]+`)

	// 途中ファイルは成果物として扱わない
	skippedSuffixes = []string{".part", ".ytdl"}
)

// LocateArtifact は dir から成果物ファイルを探します。
// 拡張子の優先順にタイトル一致するファイルを探し、見つからなければ
// 拡張子が合う中で最も新しいファイルを返します。
//
// 同じディレクトリに複数ジョブが同時に書き込む場合、最終手段の更新日時による
// 選択は別ジョブのファイルを拾う可能性があります。
func LocateArtifact(dir, title string, format Format) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download dir: %w", err)
	}

	extensions := format.Extensions()
	wanted := normalizeName(cleanTitle(title))

	for _, ext := range extensions {
		if wanted == "" {
			break
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || isPartial(name) || !strings.HasSuffix(strings.ToLower(name), ext) {
				continue
			}
			if titleMatches(name, wanted) {
				return filepath.Join(dir, name), nil
			}
		}
	}

	var (
		newestPath string
		newestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || isPartial(name) || !hasAnySuffix(strings.ToLower(name), extensions) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newestPath == "" || info.ModTime().After(newestTime) {
			newestPath = filepath.Join(dir, name)
			newestTime = info.ModTime()
		}
	}
	if newestPath == "" {
		return "", fmt.Errorf("no %s artifact in %s: %w", format, dir, fs.ErrNotExist)
	}
	return newestPath, nil
}

// cleanTitle は記号を取り除き、空白とハイフンの連続を1つのハイフンにまとめます。
func cleanTitle(title string) string {
	cleaned := strings.TrimSpace(nonWordPattern.ReplaceAllString(title, ""))
	return separatorPattern.ReplaceAllString(cleaned, "-")
}

// normalizeName は "-", "_", " " の表記揺れを吸収して小文字化します。
func normalizeName(name string) string {
	return strings.ToLower(separatorPattern.ReplaceAllString(name, "-"))
}

func titleMatches(filename, normalizedTitle string) bool {
	base := normalizeName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	return strings.Contains(base, normalizedTitle)
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range skippedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
