package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/yourusername/media-forge/internal/fetch"
	"github.com/yourusername/media-forge/internal/storage"
)

const (
	defaultReleaseDelay   = 5 * time.Second
	defaultRecentLimit    = 10
	defaultProgressBuffer = 16
)

// Fetcher は URL を取得して成果物を出力ディレクトリに書き出す外部サービスです。
// Fetch が戻った後に progress へ送信してはいけません。
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request, progress chan<- fetch.Progress) (*fetch.Outcome, error)
}

// Options は Manager の動作設定です。0 の項目は既定値を使います。
type Options struct {
	// FetchTimeout は1ジョブの取得時間の上限です。0 は無制限です。
	FetchTimeout time.Duration
	// ReleaseDelay は配信後に成果物とレコードを削除するまでの待ち時間です。
	ReleaseDelay   time.Duration
	RecentLimit    int
	ProgressBuffer int
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	store      Store
	dispatcher Dispatcher
	fetcher    Fetcher
	files      *storage.Local
	logger     *log.Logger
	opts       Options
	now        func() time.Time
}

// NewManager は Manager を初期化します。
func NewManager(store Store, dispatcher Dispatcher, fetcher Fetcher, files *storage.Local, logger *log.Logger, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if files == nil {
		return nil, errors.New("files is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.ReleaseDelay <= 0 {
		opts.ReleaseDelay = defaultReleaseDelay
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = defaultRecentLimit
	}
	if opts.ProgressBuffer <= 0 {
		opts.ProgressBuffer = defaultProgressBuffer
	}
	return &Manager{
		store:      store,
		dispatcher: dispatcher,
		fetcher:    fetcher,
		files:      files,
		logger:     logger,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start は保存先を用意してワーカーを起動します。
func (m *Manager) Start() error {
	if err := m.files.EnsureDir(); err != nil {
		return err
	}
	return m.dispatcher.Start(m.runJob)
}

// Shutdown は新規投入を止めて実行中のジョブを待ち、ストアを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.dispatcher.Shutdown(ctx)
	if cerr := m.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Submit は入力を検証してジョブを作成し、完了を待たずに ID を返します。
// キューが満杯の場合は作成したレコードを破棄して ErrQueueFull を返します。
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (int64, error) {
	rawURL := strings.TrimSpace(req.URL)
	if err := validateURL(rawURL); err != nil {
		return 0, err
	}
	format, err := fetch.ParseFormat(req.Format)
	if err != nil {
		return 0, newError(CodeInvalidInput, "format の指定が正しくありません。", err)
	}
	quality, err := fetch.ParseQuality(req.Quality)
	if err != nil {
		return 0, newError(CodeInvalidInput, "quality は best または正の整数で指定してください。", err)
	}

	job := &Job{
		URL:       rawURL,
		Format:    format,
		Quality:   quality,
		Status:    StatusPending,
		CreatedAt: m.now(),
	}
	if err := m.store.Create(ctx, job); err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}

	if err := m.dispatcher.Dispatch(ctx, job.ID); err != nil {
		if derr := m.store.Delete(context.WithoutCancel(ctx), job.ID); derr != nil {
			m.logger.Printf("job=%d failed to discard undispatched record: %v", job.ID, derr)
		}
		if errors.Is(err, ErrQueueFull) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to dispatch job %d: %w", job.ID, err)
	}
	m.logger.Printf("job=%d submitted url=%s format=%s quality=%s", job.ID, job.URL, job.Format, job.Quality)
	return job.ID, nil
}

// Status はジョブのスナップショットを返します。
func (m *Manager) Status(ctx context.Context, jobID int64) (*Job, error) {
	return m.store.Get(ctx, jobID)
}

// Recent は新しい順にジョブを返します。limit が 0 以下の場合は既定件数です。
func (m *Manager) Recent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = m.opts.RecentLimit
	}
	return m.store.Recent(ctx, limit)
}

// Cleanup は olderThan より前に完了したジョブの成果物とレコードを削除し、削除件数を返します。
// ファイル削除の失敗はログに残して続行します。
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan)
	expired, err := m.store.CompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list completed jobs: %w", err)
	}

	cleared := 0
	for _, job := range expired {
		if job.FilePath != "" {
			if err := m.files.Remove(job.FilePath); err != nil {
				m.logger.Printf("job=%d failed to remove file %s: %v", job.ID, job.FilePath, err)
			}
		}
		if err := m.store.Delete(ctx, job.ID); err != nil {
			m.logger.Printf("job=%d failed to delete record: %v", job.ID, err)
			continue
		}
		cleared++
	}
	if cleared > 0 {
		m.logger.Printf("cleanup removed %d completed jobs older than %s", cleared, olderThan)
	}
	return cleared, nil
}

// OpenResult は完了済みジョブの成果物を開きます。呼び出し側で File を Close してください。
func (m *Manager) OpenResult(ctx context.Context, jobID int64) (*Job, *storage.File, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted {
		return nil, nil, newError(CodeNotReady, fmt.Sprintf("job %d is %s", jobID, job.Status), nil)
	}

	file, err := m.files.Open(job.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrOutsideBaseDir) {
			return nil, nil, newError(CodeFileMissing, fmt.Sprintf("result file of job %d is missing", jobID), err)
		}
		return nil, nil, fmt.Errorf("failed to open result of job %d: %w", jobID, err)
	}
	return job, file, nil
}

// ScheduleRelease は配信済みの成果物とレコードを ReleaseDelay 後に削除します。
func (m *Manager) ScheduleRelease(jobID int64, path string) {
	m.files.RemoveAfter(path, m.opts.ReleaseDelay, func(err error) {
		if err != nil {
			// レコードを残し、保持期間の掃除で再度削除させる
			m.logger.Printf("job=%d failed to remove delivered file %s: %v", jobID, path, err)
			return
		}
		if err := m.store.Delete(context.Background(), jobID); err != nil {
			m.logger.Printf("job=%d failed to delete delivered record: %v", jobID, err)
			return
		}
		m.logger.Printf("job=%d released after delivery", jobID)
	})
}

func validateURL(raw string) error {
	if raw == "" {
		return newError(CodeInvalidInput, "URL を入力してください。", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return newError(CodeInvalidInput, "URL の形式が正しくありません。", err)
	}
	return nil
}
