package fetch

import "math"

// UnknownProgressPercent は総量が不明なときに報告する仮の進捗値です。
const UnknownProgressPercent = 50

// Request は1件の取得要求です。
type Request struct {
	URL       string
	Format    Format
	Quality   string
	OutputDir string
}

// Progress は取得中に送られる進捗イベントです。
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	Title           string
}

// Percent は進捗率（0-100）を返します。総量不明の場合は UnknownProgressPercent です。
func (p Progress) Percent() int {
	if p.TotalBytes <= 0 {
		return UnknownProgressPercent
	}
	percent := int(math.Floor(float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100))
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// Outcome は取得完了時に外部サービスから得られた情報です。
type Outcome struct {
	Title    string
	Filename string
}
