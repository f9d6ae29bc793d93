package jobs

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Runner は1件のジョブを実行します。Runner はエラーを返さず、失敗はジョブ状態に記録します。
type Runner func(ctx context.Context, jobID int64)

// Dispatcher はジョブ ID を上限付きの実行系へ渡します。
type Dispatcher interface {
	// Start はワーカーを起動し、取り出したジョブを run に渡します。
	Start(run Runner) error
	// Dispatch はブロックせずに投入します。受け付けられない場合は ErrQueueFull を返します。
	Dispatch(ctx context.Context, jobID int64) error
	// Shutdown は新規投入を止め、実行中のジョブを ctx の期限まで待ちます。
	Shutdown(ctx context.Context) error
}

var errPoolNotStarted = errors.New("worker pool is not started")

// Pool はプロセス内のワーカープールです。キューは容量付きのチャネルです。
type Pool struct {
	workers int
	queue   chan int64
	logger  *log.Logger

	mu      sync.RWMutex
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool は workers 個のワーカーと capacity 件のキューを持つ Pool を作成します。
func NewPool(workers, capacity int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		queue:   make(chan int64, capacity),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *Pool) Start(run Runner) error {
	if run == nil {
		return errors.New("runner is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("worker pool is shut down")
	}
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for jobID := range p.queue {
				run(p.ctx, jobID)
			}
		}(i)
	}
	p.logger.Printf("worker pool started workers=%d capacity=%d", p.workers, cap(p.queue))
	return nil
}

func (p *Pool) Dispatch(ctx context.Context, jobID int64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return errPoolNotStarted
	}
	if p.closed {
		return newError(CodeQueueFull, "worker pool is shutting down", nil)
	}
	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown はキューを閉じ、残りのジョブを処理し終えるまで待ちます。
// ctx が先に終わった場合は実行中のジョブのコンテキストを取り消します。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
