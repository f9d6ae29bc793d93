// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/media-forge/internal/config"
	"github.com/yourusername/media-forge/internal/jobs"
)

const (
	serviceName       = "media-forge-api"
	serviceVersion    = "0.1.0"
	sessionCookieName = "media_forge_session"
	requestIDHeader   = "X-Request-Id"

	// 開発用の署名鍵。release モードでは SESSION_SECRET が必須です。
	devSessionSecret = "media-forge-dev-session-secret"
	shutdownTimeout  = 30 * time.Second
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := log.Default()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	manager, err := setupJobs(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up jobs: %v", err)
	}
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	router := newRouter(cfg, manager)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting API server on %s (mode: %s, store: %s, queue: %s)", srv.Addr, cfg.GinMode, cfg.StoreBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("Job manager shutdown error: %v", err)
	}
}

// newRouter はミドルウェアとルーティングを組み立てます。
func newRouter(cfg *config.Config, svc jobs.Service) *gin.Engine {
	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.Use(requestID())

	// セッションストアの設定（フラッシュメッセージ用）
	secret := cfg.SessionSecret
	if secret == "" {
		log.Printf("SESSION_SECRET is not set; using the development secret")
		secret = devSessionSecret
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		requestIDHeader,
	}
	// ダウンロード時のファイル名をフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{requestIDHeader, "Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, svc)
	return router
}

// setupRoutes はジョブ関連のルートとヘルスチェックを登録します。
func setupRoutes(router *gin.Engine, cfg *config.Config, svc jobs.Service) {
	router.GET("/health", handleHealth)
	router.GET("/", handleIndex)

	jobs.RegisterRoutes(router, svc, jobs.HandlerOptions{
		Retention:   cfg.Retention(),
		RecentLimit: cfg.RecentLimit,
	})
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// handleIndex はサービス情報と未表示のフラッシュメッセージを返します。
func handleIndex(c *gin.Context) {
	session := sessions.Default(c)
	messages := []string{}
	if flashes := session.Flashes(); len(flashes) > 0 {
		for _, flash := range flashes {
			if msg, ok := flash.(string); ok {
				messages = append(messages, msg)
			}
		}
		if err := session.Save(); err != nil {
			_ = c.Error(err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"service":  serviceName,
		"version":  serviceVersion,
		"messages": messages,
	})
}

// requestID はリクエストごとに ID を払い出し、レスポンスヘッダーに付与します。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
