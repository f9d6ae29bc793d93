package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store はジョブ状態の保存先です。
// Update は1レコード単位で読み取り→変更→書き込みを不可分に行い、
// Get は確定済みのスナップショットを返します。
type Store interface {
	// Create は ID と作成日時を採番して保存します。
	Create(ctx context.Context, job *Job) error
	// Get は存在しない場合 ErrNotFound を返します。
	Get(ctx context.Context, jobID int64) (*Job, error)
	// Update は mutate が errNoChange を返した場合は何も書き込みません。
	Update(ctx context.Context, jobID int64, mutate func(*Job) error) error
	// Recent は作成日時の新しい順に最大 limit 件を返します。
	Recent(ctx context.Context, limit int) ([]*Job, error)
	// CompletedBefore は completed かつ cutoff より前に完了したジョブを返します。
	CompletedBefore(ctx context.Context, cutoff time.Time) ([]*Job, error)
	// Delete は存在しないジョブを指定してもエラーにしません。
	Delete(ctx context.Context, jobID int64) error
	Close() error
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func markProcessing() func(*Job) error {
	return func(job *Job) error {
		if job.Status != StatusPending {
			return transitionError(job.Status, StatusProcessing)
		}
		job.Status = StatusProcessing
		job.Progress = 0
		return nil
	}
}

// applyProgress は進捗が増える場合とタイトルが未設定の場合だけ更新します。
func applyProgress(percent int, title string) func(*Job) error {
	return func(job *Job) error {
		if job.Status != StatusProcessing {
			return errNoChange
		}
		changed := false
		if percent > job.Progress && percent <= 100 {
			job.Progress = percent
			changed = true
		}
		if title = strings.TrimSpace(title); title != "" && job.Title == "" {
			job.Title = title
			changed = true
		}
		if !changed {
			return errNoChange
		}
		return nil
	}
}

func markCompleted(path string, size int64, title string, now time.Time) func(*Job) error {
	return func(job *Job) error {
		if job.Status != StatusProcessing {
			return transitionError(job.Status, StatusCompleted)
		}
		if path == "" {
			return fmt.Errorf("completed job requires a file path")
		}
		job.Status = StatusCompleted
		job.Progress = 100
		job.FilePath = path
		job.FileSize = size
		if title = strings.TrimSpace(title); title != "" {
			job.Title = title
		}
		job.ErrorCode = ""
		job.ErrorMessage = ""
		completedAt := now.UTC()
		job.CompletedAt = &completedAt
		return nil
	}
}

func markFailed(code, message string, now time.Time) func(*Job) error {
	return func(job *Job) error {
		if job.Status.IsFinished() {
			return transitionError(job.Status, StatusFailed)
		}
		if code == "" {
			code = CodeInternal
		}
		if strings.TrimSpace(message) == "" {
			message = "unknown error"
		}
		job.Status = StatusFailed
		job.FilePath = ""
		job.FileSize = 0
		job.ErrorCode = code
		job.ErrorMessage = message
		completedAt := now.UTC()
		job.CompletedAt = &completedAt
		return nil
	}
}
