package fetch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

const (
	outputTemplate   = "%(title)s.%(ext)s"
	audioCodec       = "mp3"
	audioQuality     = "192K"
	subtitleLangs    = "en,en-US,en-GB"
	subtitleFormat   = "srt"
	defaultRetryWait = 2 * time.Second
)

// YtDlp は yt-dlp 実行ファイルを利用する取得サービスです。
type YtDlp struct {
	executable string
	interval   time.Duration
	retries    int
	retryWait  time.Duration
	logger     *log.Logger
}

// NewYtDlp は YtDlp を作成します。executable が空の場合は PATH から解決します。
func NewYtDlp(executable string, interval time.Duration, retries int, logger *log.Logger) *YtDlp {
	if logger == nil {
		logger = log.Default()
	}
	if retries < 0 {
		retries = 0
	}
	return &YtDlp{
		executable: executable,
		interval:   interval,
		retries:    retries,
		retryWait:  defaultRetryWait,
		logger:     logger,
	}
}

// Fetch は URL の取得と変換を行い、進捗を progress に送ります。
// progress への送信は Fetch が戻る前に必ず止まります。
func (y *YtDlp) Fetch(ctx context.Context, req Request, progress chan<- Progress) (*Outcome, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if req.OutputDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}

	em := &emitter{ch: progress}
	defer em.close()

	dl := y.command(req)
	dl.ProgressFunc(y.interval, func(update ytdlp.ProgressUpdate) {
		if update.Status != ytdlp.ProgressStatusDownloading {
			return
		}
		ev := Progress{
			DownloadedBytes: int64(update.DownloadedBytes),
			TotalBytes:      int64(update.TotalBytes),
		}
		if update.Info != nil && update.Info.Title != nil {
			ev.Title = *update.Info.Title
		}
		em.send(ctx, ev)
	})

	result, err := y.runWithRetry(ctx, dl, req.URL)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Title: em.lastTitle()}
	if result != nil {
		info, err := result.GetExtractedInfo()
		if err == nil && len(info) > 0 {
			if info[0].Title != nil && *info[0].Title != "" {
				outcome.Title = *info[0].Title
			}
			if info[0].Filename != nil {
				outcome.Filename = *info[0].Filename
			}
		}
	}
	return outcome, nil
}

func (y *YtDlp) command(req Request) *ytdlp.Command {
	dl := ytdlp.New().
		RestrictFilenames().
		NoPlaylist().
		PrintJSON().
		Output(filepath.Join(req.OutputDir, outputTemplate))
	if y.executable != "" {
		dl.SetExecutable(y.executable)
	}

	switch req.Format {
	case FormatAudioOnly:
		dl.Format(formatSelector(req.Format, req.Quality)).
			ExtractAudio().
			AudioFormat(audioCodec).
			AudioQuality(audioQuality)
	case FormatSubtitles:
		dl.WriteSubs().
			WriteAutoSubs().
			SubLangs(subtitleLangs).
			ConvertSubs(subtitleFormat).
			SkipDownload()
	default:
		dl.Format(formatSelector(req.Format, req.Quality))
	}
	return dl
}

// runWithRetry は失敗時に retryWait 待ってから再実行します。
func (y *YtDlp) runWithRetry(ctx context.Context, dl *ytdlp.Command, url string) (*ytdlp.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= y.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(y.retryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			y.logger.Printf("retrying fetch url=%s attempt=%d", url, attempt+1)
		}

		res, err := dl.Run(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err
		y.logger.Printf("fetch attempt %d failed url=%s: %v", attempt+1, url, err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// formatSelector は形式と画質から yt-dlp の -f 式を組み立てます。
func formatSelector(format Format, quality string) string {
	best := quality == "" || quality == QualityBest
	switch format {
	case FormatAudioOnly:
		return "bestaudio/best"
	case FormatVideoOnly:
		if best {
			return "best[vcodec!=none][acodec=none]/best"
		}
		return fmt.Sprintf("best[height<=%s][vcodec!=none][acodec=none]", quality)
	case FormatSubtitles:
		return ""
	default:
		if best {
			return "best[ext=mp4]/best"
		}
		return fmt.Sprintf("best[height<=%s][ext=mp4]/best[height<=%s]", quality, quality)
	}
}

// emitter は Fetch 終了後にチャネルへ送信しないよう保護します。
type emitter struct {
	mu     sync.Mutex
	ch     chan<- Progress
	closed bool
	title  string
}

func (e *emitter) send(ctx context.Context, p Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.Title != "" {
		e.title = p.Title
	}
	if e.closed || e.ch == nil {
		return
	}
	select {
	case e.ch <- p:
	case <-ctx.Done():
	}
}

func (e *emitter) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *emitter) lastTitle() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}
