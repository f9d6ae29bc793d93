package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	taskTypeFetch  = "media:fetch"
	fetchQueueName = "media"

	// defaultTaskTimeout は取得タイムアウト未設定時のタスク期限です。
	defaultTaskTimeout = 24 * time.Hour
)

// TaskPayload は取得タスクのペイロードです。ジョブ本体はストアから読み込みます。
type TaskPayload struct {
	JobID int64 `json:"jobId"`
}

// AsynqQueue は Redis 上の Asynq キューでジョブを実行する Dispatcher です。
// ジョブ状態を API プロセスと共有するため Redis ストアと組み合わせて使います。
type AsynqQueue struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	timeout time.Duration
	logger  *log.Logger
	run     Runner
}

// NewAsynqQueue は AsynqQueue を初期化します。taskTimeout が 0 の場合は既定値を使います。
func NewAsynqQueue(redisURL string, concurrency int, taskTimeout time.Duration, logger *log.Logger) (*AsynqQueue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	if logger == nil {
		logger = log.Default()
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				fetchQueueName: 1,
			},
			Logger: asynqLogger{logger: logger},
		},
	)
	return &AsynqQueue{
		client:  asynq.NewClient(opt),
		server:  server,
		mux:     asynq.NewServeMux(),
		timeout: taskTimeout,
		logger:  logger,
	}, nil
}

// Start はシグナル処理を奪わないよう Run ではなく Start でサーバーを起動します。
func (q *AsynqQueue) Start(run Runner) error {
	if run == nil {
		return errors.New("runner is nil")
	}
	q.run = run
	q.mux.HandleFunc(taskTypeFetch, q.handleFetchTask)
	if err := q.server.Start(q.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Dispatch(ctx context.Context, jobID int64) error {
	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeFetch, body, asynq.Queue(fetchQueueName))
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.TaskID(uuid.NewString()),
		asynq.Timeout(q.timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue fetch task: %w", err)
	}
	q.logger.Printf("job=%d enqueued task=%s queue=%s", jobID, info.ID, info.Queue)
	return nil
}

func (q *AsynqQueue) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.server.Shutdown()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cerr := q.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// handleFetchTask は失敗をジョブ状態に記録するため、ペイロード不正以外ではエラーを返しません。
func (q *AsynqQueue) handleFetchTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID <= 0 {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}
	q.run(ctx, payload.JobID)
	return nil
}

// asynqLogger は asynq.Logger を *log.Logger に委譲します。
type asynqLogger struct {
	logger *log.Logger
}

func (l asynqLogger) Debug(args ...interface{}) {}

func (l asynqLogger) Info(args ...interface{}) {
	l.logger.Print(append([]interface{}{"asynq: "}, args...)...)
}

func (l asynqLogger) Warn(args ...interface{}) {
	l.logger.Print(append([]interface{}{"asynq warn: "}, args...)...)
}

func (l asynqLogger) Error(args ...interface{}) {
	l.logger.Print(append([]interface{}{"asynq error: "}, args...)...)
}

func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(append([]interface{}{"asynq fatal: "}, args...)...)
}
