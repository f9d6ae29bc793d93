package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix      = "job:"
	jobSeqKey         = "jobs:seq"
	createdIndexKey   = "jobs:created"
	completedIndexKey = "jobs:completed"

	maxUpdateAttempts = 50
)

// RedisStore はジョブ状態を Redis に保存します。
// 作成順は採番済み ID、完了日時はミリ秒をスコアとするソート済みセットで索引します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合は期限を設定しません。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	id, err := s.rdb.Incr(ctx, jobSeqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate job id: %w", err)
	}
	job.ID = id
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(id), payload, s.ttl)
		pipe.ZAdd(ctx, createdIndexKey, redis.Z{Score: float64(id), Member: member(id)})
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, jobID int64) (*Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(jobID)
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Update は WATCH でキーを監視し、競合した場合はやり直します。
func (s *RedisStore) Update(ctx context.Context, jobID int64, mutate func(*Job) error) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return notFound(jobID)
			}
			return err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if err := mutate(&job); err != nil {
			return err
		}
		job.ID = jobID
		payload, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			if job.Status == StatusCompleted && job.CompletedAt != nil {
				pipe.ZAdd(ctx, completedIndexKey, redis.Z{
					Score:  float64(job.CompletedAt.UnixMilli()),
					Member: member(jobID),
				})
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil, errors.Is(err, errNoChange):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("job %d: update retries exhausted", jobID)
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 10
	}
	var (
		list  []*Job
		start int64
		page  = int64(limit)
	)
	for len(list) < limit {
		ids, err := s.rdb.ZRevRange(ctx, createdIndexKey, start, start+page-1).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		jobs, removed, err := s.loadMembers(ctx, ids, createdIndexKey)
		if err != nil {
			return nil, err
		}
		list = append(list, jobs...)
		// 期限切れ ID は索引から消えているので、その分だけ後続の順位が繰り上がる
		start += int64(len(ids) - removed)
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *RedisStore) CompletedBefore(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, completedIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	jobs, _, err := s.loadMembers(ctx, ids, completedIndexKey)
	if err != nil {
		return nil, err
	}
	list := jobs[:0]
	for _, job := range jobs {
		if job.Status == StatusCompleted && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			list = append(list, job)
		}
	}
	return list, nil
}

func (s *RedisStore) Delete(ctx context.Context, jobID int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, jobKey(jobID))
		pipe.ZRem(ctx, createdIndexKey, member(jobID))
		pipe.ZRem(ctx, completedIndexKey, member(jobID))
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// loadMembers は索引の ID からレコードを読み込み、期限切れの ID を索引から外します。
// 戻り値の removed は期限切れだった件数です。他の読み手が先に外していても数えます。
func (s *RedisStore) loadMembers(ctx context.Context, ids []string, index string) ([]*Job, int, error) {
	if len(ids) == 0 {
		return nil, 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKeyPrefix + id
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}

	list := make([]*Job, 0, len(values))
	var stale []any
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, 0, err
		}
		list = append(list, &job)
	}
	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, index, stale...).Err(); err != nil {
			return nil, 0, err
		}
	}
	return list, len(stale), nil
}

func jobKey(id int64) string {
	return jobKeyPrefix + member(id)
}

func member(id int64) string {
	return strconv.FormatInt(id, 10)
}
