// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストア/キューのバックエンド種別
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	QueuePool  = "pool"
	QueueAsynq = "asynq"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定（フラッシュメッセージ用クッキーの署名鍵）
	SessionSecret string

	// ダウンロード処理設定
	DownloadDir         string // 成果物の保存先ディレクトリ
	YtDlpPath           string // yt-dlp 実行ファイルのパス
	FetchRetries        int    // 取得失敗時の再試行回数
	FetchTimeoutMinutes int    // 1ジョブあたりの取得タイムアウト（0 で無効）
	ProgressIntervalMS  int    // 進捗通知の間隔（ミリ秒）

	// ジョブストア設定
	StoreBackend        string // memory / sqlite / redis
	SQLitePath          string // SQLite ファイルのパス
	RedisURL            string // ジョブ状態保存用Redis接続URL
	JobRecordTTLMinutes int    // Redis 上のジョブ情報の有効期限（分、0 で無期限）

	// ジョブ/キュー設定
	QueueBackend      string // pool / asynq
	QueueRedisURL     string // Asynq用Redis接続URL
	WorkerConcurrency int    // 同時実行ワーカー数
	QueueCapacity     int    // 待機できるジョブ数の上限（pool のみ）

	// 後片付け設定
	RetentionMinutes            int // 完了ジョブを保持する時間（分）
	DeliveryCleanupDelaySeconds int // 配信後にファイルを削除するまでの待ち時間（秒）
	RecentLimit                 int // 最近のジョブ一覧の件数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		SessionSecret: getEnv("SESSION_SECRET", ""),

		// ダウンロード処理設定
		DownloadDir:         getEnv("DOWNLOAD_DIR", "downloads"),
		YtDlpPath:           getEnv("YTDLP_PATH", "yt-dlp"),
		FetchRetries:        getEnvAsInt("FETCH_RETRIES", 1),
		FetchTimeoutMinutes: getEnvAsInt("FETCH_TIMEOUT_MINUTES", 0),
		ProgressIntervalMS:  getEnvAsInt("PROGRESS_INTERVAL_MS", 500),

		// ジョブストア設定
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		SQLitePath:          getEnv("SQLITE_PATH", "data/jobs.db"),
		RedisURL:            getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobRecordTTLMinutes: getEnvAsInt("JOB_RECORD_TTL_MINUTES", 24*60),

		// ジョブ/キュー設定
		QueueBackend:      strings.ToLower(getEnv("QUEUE_BACKEND", QueuePool)),
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		QueueCapacity:     getEnvAsInt("QUEUE_CAPACITY", 100),

		// 後片付け設定
		RetentionMinutes:            getEnvAsInt("RETENTION_MINUTES", 60),
		DeliveryCleanupDelaySeconds: getEnvAsInt("DELIVERY_CLEANUP_DELAY_SECONDS", 5),
		RecentLimit:                 getEnvAsInt("RECENT_LIMIT", 10),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, redis (got %q)", c.StoreBackend)
	}
	switch c.QueueBackend {
	case QueuePool, QueueAsynq:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be pool or asynq (got %q)", c.QueueBackend)
	}

	// asynq のワーカーは別プロセスでも動くため、状態は Redis で共有する
	if c.QueueBackend == QueueAsynq && c.StoreBackend != StoreRedis {
		return fmt.Errorf("QUEUE_BACKEND=asynq requires STORE_BACKEND=redis")
	}
	if c.StoreBackend == StoreSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
	}
	if c.StoreBackend == StoreRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
	}
	if c.QueueBackend == QueueAsynq && c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required when QUEUE_BACKEND=asynq")
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("DOWNLOAD_DIR is required")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive")
	}

	// ローカル開発ではセッション鍵は任意
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.YtDlpPath == "" {
			return fmt.Errorf("YTDLP_PATH is required in release mode")
		}
	}

	return nil
}

// Retention は完了ジョブの保持期間を返します。
func (c *Config) Retention() time.Duration {
	if c.RetentionMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// DeliveryCleanupDelay は配信後の削除待ち時間を返します。
func (c *Config) DeliveryCleanupDelay() time.Duration {
	if c.DeliveryCleanupDelaySeconds < 0 {
		return 0
	}
	return time.Duration(c.DeliveryCleanupDelaySeconds) * time.Second
}

// FetchTimeout は取得処理のタイムアウトを返します（0 はタイムアウトなし）。
func (c *Config) FetchTimeout() time.Duration {
	if c.FetchTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.FetchTimeoutMinutes) * time.Minute
}

// ProgressInterval は進捗通知の間隔を返します。
func (c *Config) ProgressInterval() time.Duration {
	if c.ProgressIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

// JobRecordTTL は Redis 上のジョブ情報の有効期限を返します。
func (c *Config) JobRecordTTL() time.Duration {
	if c.JobRecordTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.JobRecordTTLMinutes) * time.Minute
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
