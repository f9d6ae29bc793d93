package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/media-forge/internal/fetch"
)

// jobRow は download_jobs テーブルの1行です。
type jobRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	URL          string `gorm:"not null"`
	Title        string
	Format       string
	Quality      string
	Status       string `gorm:"index"`
	Progress     int
	FilePath     string
	FileSize     int64
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time `gorm:"index"`
}

func (jobRow) TableName() string {
	return "download_jobs"
}

// SQLiteStore はジョブ状態を SQLite ファイルに保存します。
// 書き込みを直列化するため接続は1本に制限します。
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore はデータベースを開き、テーブルを作成します。
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := db.AutoMigrate(&jobRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate download_jobs: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	row := toRow(job)
	row.ID = 0
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	job.ID = row.ID
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, jobID int64) (*Job, error) {
	var row jobRow
	err := s.db.WithContext(ctx).First(&row, jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(jobID)
		}
		return nil, err
	}
	return row.toJob(), nil
}

func (s *SQLiteStore) Update(ctx context.Context, jobID int64, mutate func(*Job) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row jobRow
		if err := tx.First(&row, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(jobID)
			}
			return err
		}
		job := row.toJob()
		if err := mutate(job); err != nil {
			return err
		}
		job.ID = jobID
		return tx.Save(toRow(job)).Error
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// Recent は ID の降順で返します。ID は作成順に採番されるため作成日時の降順と一致します。
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []jobRow
	if err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toJobs(rows), nil
}

func (s *SQLiteStore) CompletedBefore(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	var rows []jobRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND completed_at IS NOT NULL", string(StatusCompleted)).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	var list []*Job
	for _, job := range toJobs(rows) {
		if job.CompletedAt.Before(cutoff) {
			list = append(list, job)
		}
	}
	return list, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, jobID int64) error {
	return s.db.WithContext(ctx).Delete(&jobRow{}, jobID).Error
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(job *Job) *jobRow {
	return &jobRow{
		ID:           job.ID,
		URL:          job.URL,
		Title:        job.Title,
		Format:       string(job.Format),
		Quality:      job.Quality,
		Status:       string(job.Status),
		Progress:     job.Progress,
		FilePath:     job.FilePath,
		FileSize:     job.FileSize,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.UTC(),
		CompletedAt:  job.CompletedAt,
	}
}

func (r *jobRow) toJob() *Job {
	job := &Job{
		ID:           r.ID,
		URL:          r.URL,
		Title:        r.Title,
		Format:       fetch.Format(r.Format),
		Quality:      r.Quality,
		Status:       Status(r.Status),
		Progress:     r.Progress,
		FilePath:     r.FilePath,
		FileSize:     r.FileSize,
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		job.CompletedAt = &t
	}
	return job
}

func toJobs(rows []jobRow) []*Job {
	list := make([]*Job, 0, len(rows))
	for i := range rows {
		list = append(list, rows[i].toJob())
	}
	return list
}
