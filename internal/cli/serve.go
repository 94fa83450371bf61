package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/channel"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/config"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/coordinator"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/infra/memory"
	pgloader "github.com/anhlinh-II/thukhoa-ta-sub000/internal/infra/postgres"
	redisinfra "github.com/anhlinh-II/thukhoa-ta-sub000/internal/infra/redis"
)

// NewServeCmd builds the CLI subcommand that starts the battle coordinator.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the battle coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo coordinator.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var registry coordinator.BattleRegistry
	if redisClient != nil {
		registry = redisinfra.NewBattleRegistry(redisClient, redisTTL)
	} else {
		registry = memory.NewBattleRegistry()
	}

	// With Redis the broadcast bus is its pub/sub, so clients may connect
	// either straight to Redis or through the websocket bridge; without it
	// everything rides the in-process broker behind the bridge.
	var broker coordinator.Broker
	if redisClient != nil {
		broker = channel.NewRedisTransport(redisClient)
	} else {
		broker = channel.NewMemoryBroker()
	}

	var results coordinator.ResultsStore
	if pool != nil {
		results = pgloader.NewResultsStore(pool)
	}

	service := coordinator.NewService(broker, registry, quizRepo, results, coordinator.Config{
		CountdownSeconds: cfg.Battle.CountdownSeconds,
	})
	if err := service.Run(ctx); err != nil {
		return err
	}
	bridge := coordinator.NewWSBridge(broker)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      coordinator.Routes(service, bridge),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting battle coordinator on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down coordinator...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down coordinator...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides minimal quiz content so the coordinator runs
// without Postgres; production deployments load previews from the quizzes
// table instead.
func sampleQuizzes() map[int64]domain.QuizPreview {
	return map[int64]domain.QuizPreview{
		1: {
			QuizID: 1,
			Name:   "General knowledge sprint",
			Groups: []domain.QuestionGroup{
				{
					ID:      10,
					Content: "<p>Read the passage and answer the questions below.</p>",
					Questions: []domain.Question{
						{
							ID:      101,
							Content: "<p>What is 2 + 2?</p>",
							Score:   5,
							Options: []domain.Option{
								{ID: 1001, Content: "3"},
								{ID: 1002, Content: "4", IsCorrect: true},
								{ID: 1003, Content: "5"},
							},
						},
						{
							ID:      102,
							Content: "<p>What is 3 × 3?</p>",
							Score:   5,
							Options: []domain.Option{
								{ID: 1004, Content: "6"},
								{ID: 1005, Content: "9", IsCorrect: true},
							},
						},
					},
				},
			},
			Questions: []domain.Question{
				{
					ID:      103,
					Content: "<p>Which planet is known as the red planet?</p>",
					Score:   10,
					Options: []domain.Option{
						{ID: 1006, Content: "Venus"},
						{ID: 1007, Content: "Mars", IsCorrect: true},
						{ID: 1008, Content: "Jupiter"},
					},
				},
			},
		},
	}
}
