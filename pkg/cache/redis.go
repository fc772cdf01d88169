// pkg/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"quizz/internal/models"
	"quizz/pkg/quizz"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func quizKey(code string) string        { return "quiz:" + code }
func leaderboardKey(code string) string { return "leaderboard:" + code }

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// SetQuiz caches the record, snapshot included.
func (c *RedisCache) SetQuiz(ctx context.Context, quiz *models.QuizRecord) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, quizKey(quiz.QuizCode), data, c.ttl).Err()
}

func (c *RedisCache) GetQuiz(ctx context.Context, code string) (*models.QuizRecord, error) {
	data, err := c.client.Get(ctx, quizKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var quiz models.QuizRecord
	if err := json.Unmarshal(data, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// DeleteQuiz drops the cached record and its leaderboard.
func (c *RedisCache) DeleteQuiz(ctx context.Context, code string) error {
	return c.client.Del(ctx, quizKey(code), leaderboardKey(code)).Err()
}

// SetLeaderboard replaces the leaderboard sorted set for a quiz. Readers
// outside the server can rank players with ZREVRANGE on it.
func (c *RedisCache) SetLeaderboard(ctx context.Context, code string, entries []quizz.LeaderboardEntry) error {
	key := leaderboardKey(code)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, entry := range entries {
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(entry.Score),
			Member: string(entry.PlayerID),
		})
	}
	pipe.Expire(ctx, key, c.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// GetLeaderboard reads the mirror back, highest score first. Ties come back
// in reverse lexical order of player id, which is how redis ranks them.
//
// The server never answers from this set; it ranks from the quiz snapshot.
// GetLeaderboard is for readers outside the server, such as dashboards
// sharing the redis instance.
func (c *RedisCache) GetLeaderboard(ctx context.Context, code string) ([]quizz.LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]quizz.LeaderboardEntry, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries[i] = quizz.LeaderboardEntry{
			PlayerID: quizz.PlayerID(member),
			Score:    int(z.Score),
		}
	}
	return entries, nil
}
