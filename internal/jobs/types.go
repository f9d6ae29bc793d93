// Package jobs は非同期ジョブ管理機能を提供します。
package jobs

import (
	"time"

	"github.com/yourusername/media-forge/internal/fetch"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsFinished は完了または失敗で確定した状態かを返します。
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job は1件のダウンロード要求とその状態です。
// ストアから返る Job はスナップショットであり、書き換えてもストアには反映されません。
type Job struct {
	ID           int64        `json:"id"`
	URL          string       `json:"url"`
	Title        string       `json:"title,omitempty"`
	Format       fetch.Format `json:"format"`
	Quality      string       `json:"quality"`
	Status       Status       `json:"status"`
	Progress     int          `json:"progress"`
	FilePath     string       `json:"filePath,omitempty"`
	FileSize     int64        `json:"fileSize,omitempty"`
	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// SubmitRequest はジョブ投入時の入力です。
type SubmitRequest struct {
	URL     string
	Format  string
	Quality string
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
