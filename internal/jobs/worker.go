package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/yourusername/media-forge/internal/fetch"
)

// runJob は1件のジョブを pending → processing → completed/failed と進めます。
// 失敗はすべてジョブ状態に記録し、呼び出し元には伝えません。
func (m *Manager) runJob(ctx context.Context, jobID int64) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("job=%d panic: %v\n%s", jobID, r, debug.Stack())
			m.fail(ctx, jobID, CodeInternal, fmt.Sprintf("panic: %v", r))
		}
	}()

	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		m.logger.Printf("job=%d failed to load: %v", jobID, err)
		if !errors.Is(err, ErrNotFound) {
			m.fail(ctx, jobID, CodeInternal, err.Error())
		}
		return
	}
	if err := m.store.Update(ctx, jobID, markProcessing()); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			m.logger.Printf("job=%d skipped: %v", jobID, err)
			return
		}
		m.fail(ctx, jobID, CodeInternal, err.Error())
		return
	}
	m.logger.Printf("job=%d processing url=%s", jobID, job.URL)

	outcome, err := m.fetchWithProgress(ctx, job)
	if err != nil {
		m.fail(ctx, jobID, CodeFetchFailed, err.Error())
		return
	}

	title := strings.TrimSpace(outcome.Title)
	if title == "" {
		if current, err := m.store.Get(context.WithoutCancel(ctx), jobID); err == nil {
			title = current.Title
		}
	}

	path, err := m.locateResult(outcome, title, job.Format)
	if err != nil {
		m.fail(ctx, jobID, CodeFileMissing, fmt.Sprintf("downloaded file not found: %v", err))
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		m.fail(ctx, jobID, CodeFileMissing, fmt.Sprintf("downloaded file not found: %v", err))
		return
	}

	if err := m.store.Update(context.WithoutCancel(ctx), jobID, markCompleted(path, info.Size(), title, m.now())); err != nil {
		m.logger.Printf("job=%d failed to mark completed: %v", jobID, err)
		m.fail(ctx, jobID, CodeInternal, err.Error())
		return
	}
	m.logger.Printf("job=%d completed file=%s size=%d", jobID, filepath.Base(path), info.Size())
}

// fetchWithProgress は取得中の進捗イベントを1本のゴルーチンで順に反映します。
// 戻る前にチャネルを閉じ、反映が終わるまで待ちます。
func (m *Manager) fetchWithProgress(ctx context.Context, job *Job) (*fetch.Outcome, error) {
	fetchCtx := ctx
	if m.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, m.opts.FetchTimeout)
		defer cancel()
	}

	updates := make(chan fetch.Progress, m.opts.ProgressBuffer)
	drained := make(chan struct{})
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(drained)
		for ev := range updates {
			if err := m.store.Update(writeCtx, job.ID, applyProgress(ev.Percent(), ev.Title)); err != nil {
				m.logger.Printf("job=%d failed to update progress: %v", job.ID, err)
			}
		}
	}()
	defer func() {
		close(updates)
		<-drained
	}()

	outcome, err := m.fetcher.Fetch(fetchCtx, fetch.Request{
		URL:       job.URL,
		Format:    job.Format,
		Quality:   job.Quality,
		OutputDir: m.files.Dir(),
	}, updates)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && m.opts.FetchTimeout > 0 {
			return nil, fmt.Errorf("fetch timed out after %s: %w", m.opts.FetchTimeout, err)
		}
		return nil, err
	}
	if outcome == nil {
		outcome = &fetch.Outcome{}
	}
	return outcome, nil
}

// locateResult は外部サービスが報告したファイルを優先し、無ければ保存先から探します。
func (m *Manager) locateResult(outcome *fetch.Outcome, title string, format fetch.Format) (string, error) {
	if name := outcome.Filename; name != "" && hasExtension(name, format.Extensions()) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(m.files.Dir(), name)
		}
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name, nil
		}
	}
	return fetch.LocateArtifact(m.files.Dir(), title, format)
}

// fail はジョブを failed にします。取り消されたコンテキストでも書き込めるよう切り離します。
func (m *Manager) fail(ctx context.Context, jobID int64, code, message string) {
	m.logger.Printf("job=%d failed code=%s: %s", jobID, code, message)
	err := m.store.Update(context.WithoutCancel(ctx), jobID, markFailed(code, message, m.now()))
	if err != nil {
		m.logger.Printf("job=%d failed to record failure: %v", jobID, err)
	}
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
