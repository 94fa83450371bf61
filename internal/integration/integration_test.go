package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/channel"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/coordinator"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	pgstore "github.com/anhlinh-II/thukhoa-ta-sub000/internal/infra/postgres"
	pgmigrations "github.com/anhlinh-II/thukhoa-ta-sub000/internal/infra/postgres/migrations"
	infraredis "github.com/anhlinh-II/thukhoa-ta-sub000/internal/infra/redis"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

func TestBattleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisAddr, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer redisClient.Close()

	loader := pgstore.NewQuizLoader(pool)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	registry := infraredis.NewBattleRegistry(redisClient, time.Hour)
	results := pgstore.NewResultsStore(pool)
	broker := channel.NewRedisTransport(redisClient)

	svc := coordinator.NewService(broker, registry, quizRepo, results, coordinator.Config{
		CountdownSeconds: 1,
		CountdownTick:    20 * time.Millisecond,
	})
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if err := svc.Run(runCtx); err != nil {
		t.Fatalf("run coordinator: %v", err)
	}

	session, err := svc.CreateBattle(ctx, 1, 1, "Alice", "CLASSIC")
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, 2, "Bob", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Two real clients, each with its own Redis connection and store.
	aliceStore := store.NewForUser(1)
	alice := channel.Open(ctx, session.ID, 1, channel.DialRedis(redisAddr, "", 0), aliceStore)
	defer alice.Close()
	bobStore := store.NewForUser(2)
	bob := channel.Open(ctx, session.ID, 2, channel.DialRedis(redisAddr, "", 0), bobStore)
	defer bob.Close()
	if !alice.Connected() || !bob.Connected() {
		t.Fatalf("expected both clients connected")
	}

	if err := alice.SetReady(ctx, true); err != nil {
		t.Fatalf("alice ready: %v", err)
	}
	if err := bob.SetReady(ctx, true); err != nil {
		t.Fatalf("bob ready: %v", err)
	}
	waitFor(t, func() bool {
		got, ok := bobStore.Session()
		return ok && got.Status == domain.StatusInProgress
	})

	alice.SubmitAnswer(ctx, domain.AnswerSubmission{QuestionID: 101, Answer: "1002", TimeTakenMS: 1500})
	waitFor(t, func() bool {
		for _, p := range bobStore.Leaderboard() {
			if p.UserID == 1 && p.Score == 5 {
				return true
			}
		}
		return false
	})

	alice.CompleteBattle(ctx)
	bob.CompleteBattle(ctx)
	waitFor(t, func() bool {
		got, ok := aliceStore.Session()
		return ok && got.Status == domain.StatusCompleted
	})

	// The coordinator persists the final leaderboard asynchronously.
	var stored []domain.Participant
	waitFor(t, func() bool {
		stored, err = results.Results(ctx, session.ID)
		return err == nil && len(stored) == 2
	})
	if stored[0].UserID != 1 || stored[0].Score != 5 {
		t.Fatalf("expected alice first with 5 points, got %+v", stored)
	}
	if stored[1].UserID != 2 || stored[1].Score != 0 {
		t.Fatalf("expected bob second with 0 points, got %+v", stored)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "battle", "POSTGRES_PASSWORD": "battlepass", "POSTGRES_DB": "battledb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://battle:battlepass@%s:%s/battledb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, preview domain.QuizPreview) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(preview)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, preview.QuizID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.QuizPreview {
	return domain.QuizPreview{
		QuizID: 1,
		Name:   "Capitals",
		Questions: []domain.Question{
			{
				ID:      101,
				Content: "Capital of France?",
				Score:   5,
				Options: []domain.Option{
					{ID: 1001, Content: "Berlin"},
					{ID: 1002, Content: "Paris", IsCorrect: true},
				},
			},
		},
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition never satisfied")
}
