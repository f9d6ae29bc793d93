package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/media-forge/internal/storage"
)

// Service は HTTP ハンドラーが利用するジョブ操作です。*Manager が実装します。
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (int64, error)
	Status(ctx context.Context, jobID int64) (*Job, error)
	Recent(ctx context.Context, limit int) ([]*Job, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
	OpenResult(ctx context.Context, jobID int64) (*Job, *storage.File, error)
	ScheduleRelease(jobID int64, path string)
}

// HandlerOptions はハンドラーの設定です。
type HandlerOptions struct {
	Retention   time.Duration
	RecentLimit int
}

// RegisterRoutes はジョブ関連のルートを登録します。
// download_file はフラッシュメッセージを使うため sessions ミドルウェアが必要です。
func RegisterRoutes(r gin.IRoutes, svc Service, opts HandlerOptions) {
	r.POST("/download", SubmitHandler(svc))
	r.GET("/status/:id", StatusHandler(svc))
	r.GET("/download_file/:id", DownloadFileHandler(svc))
	r.GET("/recent_downloads", RecentHandler(svc, opts.RecentLimit))
	r.GET("/clear_completed", ClearCompletedHandler(svc, opts.Retention))
}

// SubmitHandler は POST /download のハンドラーを返します。
func SubmitHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := svc.Submit(c.Request.Context(), SubmitRequest{
			URL:     c.PostForm("url"),
			Format:  c.PostForm("format"),
			Quality: c.PostForm("quality"),
		})
		if err != nil {
			status, code, message := describeError(err)
			c.JSON(status, gin.H{
				"success": false,
				"error":   message,
				"code":    code,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"download_id": jobID,
			"message":     "ダウンロードを開始しました。",
		})
	}
}

// StatusHandler は GET /status/:id のハンドラーを返します。
func StatusHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := parseJobID(c.Param("id"))
		if !ok {
			respondWithError(c, ErrNotFound)
			return
		}
		job, err := svc.Status(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, jobPayload(job))
	}
}

// DownloadFileHandler は GET /download_file/:id のハンドラーを返します。
// 取得できない場合はフラッシュメッセージを残してトップへリダイレクトします。
func DownloadFileHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := parseJobID(c.Param("id"))
		if !ok {
			redirectWithFlash(c, "ダウンロードが見つかりません。")
			return
		}

		job, file, err := svc.OpenResult(c.Request.Context(), jobID)
		if err != nil {
			redirectWithFlash(c, deliveryFailureMessage(err))
			return
		}
		defer file.Close()

		encodedName := url.PathEscape(file.Name)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", file.Name, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", strconv.FormatInt(job.ID, 10))
		c.DataFromReader(http.StatusOK, file.Size, file.ContentType, file, nil)

		svc.ScheduleRelease(job.ID, job.FilePath)
	}
}

// RecentHandler は GET /recent_downloads のハンドラーを返します。
func RecentHandler(svc Service, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.Recent(c.Request.Context(), limit)
		if err != nil {
			respondWithError(c, err)
			return
		}
		payload := make([]gin.H, 0, len(list))
		for _, job := range list {
			payload = append(payload, jobPayload(job))
		}
		c.JSON(http.StatusOK, payload)
	}
}

// ClearCompletedHandler は GET /clear_completed のハンドラーを返します。
func ClearCompletedHandler(svc Service, retention time.Duration) gin.HandlerFunc {
	if retention <= 0 {
		retention = time.Hour
	}
	return func(c *gin.Context) {
		cleared, err := svc.Cleanup(c.Request.Context(), retention)
		if err != nil {
			status, code, message := describeError(err)
			c.JSON(status, gin.H{
				"success": false,
				"error":   message,
				"code":    code,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"cleared": cleared,
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	status, code, message := describeError(err)
	c.JSON(status, gin.H{
		"code":  code,
		"error": message,
	})
}

// describeError はエラーを HTTP ステータス・コード・利用者向けメッセージに変換します。
func describeError(err error) (int, string, string) {
	var jobErr *Error
	switch {
	case errors.As(err, &jobErr):
		switch jobErr.Code {
		case CodeInvalidInput:
			return http.StatusBadRequest, jobErr.Code, jobErr.Message
		case CodeNotFound:
			return http.StatusNotFound, jobErr.Code, "指定されたダウンロードは存在しません。"
		case CodeNotReady:
			return http.StatusConflict, jobErr.Code, "ダウンロードはまだ完了していません。"
		case CodeFileMissing:
			return http.StatusGone, jobErr.Code, "ファイルが見つかりません。"
		case CodeQueueFull:
			return http.StatusServiceUnavailable, jobErr.Code, "現在混み合っています。しばらくしてから再度お試しください。"
		}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "REQUEST_CANCELED", "リクエストがキャンセルされました。"
	}
	return http.StatusInternalServerError, CodeInternal, "サーバー内部でエラーが発生しました。"
}

func deliveryFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "ダウンロードが見つかりません。"
	case errors.Is(err, ErrNotReady):
		return "ダウンロードはまだ完了していません。"
	case errors.Is(err, ErrFileMissing):
		return "ファイルが見つかりません。"
	default:
		return "ファイルの取得に失敗しました。"
	}
}

func redirectWithFlash(c *gin.Context, message string) {
	session := sessions.Default(c)
	session.AddFlash(message)
	if err := session.Save(); err != nil {
		_ = c.Error(err)
	}
	c.Redirect(http.StatusFound, "/")
}

func parseJobID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// jobPayload はジョブを API の JSON 表現に変換します。未設定の項目は null です。
func jobPayload(job *Job) gin.H {
	payload := gin.H{
		"id":                job.ID,
		"url":               job.URL,
		"title":             nullable(job.Title),
		"format_requested":  job.Format,
		"quality_requested": job.Quality,
		"status":            job.Status,
		"progress":          job.Progress,
		"file_path":         nullable(job.FilePath),
		"file_size":         nil,
		"file_size_label":   nil,
		"error_code":        nullable(job.ErrorCode),
		"error_message":     nullable(job.ErrorMessage),
		"created_at":        job.CreatedAt.Format(time.RFC3339),
		"completed_at":      nil,
	}
	if job.Status == StatusCompleted {
		payload["file_size"] = job.FileSize
		payload["file_size_label"] = FormatFileSize(job.FileSize)
	}
	if job.CompletedAt != nil {
		payload["completed_at"] = job.CompletedAt.Format(time.RFC3339)
	}
	return payload
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// FormatFileSize はバイト数を "12.34 MB" の形式に整形します。
func FormatFileSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f TB", value)
}
