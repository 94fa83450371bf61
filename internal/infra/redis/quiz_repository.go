package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.QuizPreview, error)
}

// QuizRepository caches whole previews in Redis and falls back to a loader
// on cache miss. Stored as: SET quiz:{quizID}:preview {json} EX ttl.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.QuizPreview, error) {
	key := r.previewKey(quizID)

	if preview, ok := r.fromCache(ctx, key); ok {
		return preview, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if preview, ok := r.fromCache(ctx, key); ok {
			return preview, nil
		}

		preview, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizPreview{}, err
		}

		if data, err := json.Marshal(preview); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return preview, nil
	})
	if err != nil {
		return domain.QuizPreview{}, err
	}
	return result.(domain.QuizPreview), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, key string) (domain.QuizPreview, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(data) == 0 {
		return domain.QuizPreview{}, false
	}
	var preview domain.QuizPreview
	if err := json.Unmarshal(data, &preview); err != nil {
		return domain.QuizPreview{}, false
	}
	return preview, true
}

func (r *QuizRepository) previewKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":preview"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
