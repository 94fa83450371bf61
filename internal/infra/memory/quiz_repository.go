package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.QuizPreview, error)
}

// QuizRepository caches quiz previews with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedPreview
}

type cachedPreview struct {
	preview   domain.QuizPreview
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedPreview),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.QuizPreview, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.preview, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(sfKey(quizID), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.preview, nil
		}
		r.mu.RUnlock()

		preview, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizPreview{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedPreview{
			preview:   preview,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return preview, nil
	})
	if err != nil {
		return domain.QuizPreview{}, err
	}
	return result.(domain.QuizPreview), nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func sfKey(quizID int64) string {
	return strconv.FormatInt(quizID, 10)
}

// StaticQuizLoader is a loader backed by an in-memory map (tests/demos).
type StaticQuizLoader struct {
	quizzes map[int64]domain.QuizPreview
}

func NewStaticQuizLoader(quizzes map[int64]domain.QuizPreview) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID int64) (domain.QuizPreview, error) {
	if preview, ok := l.quizzes[quizID]; ok {
		return preview, nil
	}
	return domain.QuizPreview{}, domain.ErrQuizNotFound
}
