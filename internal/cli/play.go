package cli

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/channel"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/config"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/lobby"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/quizflow"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/rest"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

// NewPlayCmd builds a terminal battle participant: it joins (or creates) a
// battle, signals ready, answers every question, and prints the final
// leaderboard. Useful for demos and for smoke-testing a coordinator.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		apiBaseURL string
		battleID   int64
		quizID     int64
		userID     int64
		name       string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a battle as a terminal participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				log.Printf("play: config load failed, using flags only: %v", err)
			}
			if apiBaseURL == "" {
				apiBaseURL = cfg.Battle.APIBaseURL
			}
			if apiBaseURL == "" {
				apiBaseURL = "http://localhost:8080"
			}
			return runPlay(cmd.Context(), cfg, apiBaseURL, battleID, quizID, userID, name)
		},
	}
	cmd.Flags().StringVar(&apiBaseURL, "api", "", "coordinator base URL")
	cmd.Flags().Int64Var(&battleID, "battle", 0, "battle to join (0 creates a new one)")
	cmd.Flags().Int64Var(&quizID, "quiz", 1, "quiz to battle on when creating")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&name, "name", "player", "display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, apiBaseURL string, battleID, quizID, userID int64, name string) error {
	api := rest.New(apiBaseURL)

	var session domain.BattleSession
	var err error
	if battleID == 0 {
		session, err = api.CreateBattle(ctx, quizID, userID, name, "solo")
		if err != nil {
			return err
		}
		fmt.Printf("created battle %d (invite %s), waiting for opponents...\n", session.ID, session.InviteCode)
	} else {
		session, err = api.JoinBattle(ctx, battleID, userID, name, "")
		if err != nil {
			return err
		}
		fmt.Printf("joined battle %d\n", session.ID)
	}
	battleID = session.ID

	battleStore := store.NewForUser(userID)
	ch := channel.Open(ctx, battleID, userID, dialFromConfig(cfg, apiBaseURL), battleStore)
	if !ch.Connected() {
		return domain.ErrNotConnected
	}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	room := lobby.New(lobby.Config{
		BattleID:    battleID,
		UserID:      userID,
		API:         api,
		Channel:     ch,
		Store:       battleStore,
		OnStart:     func() { close(started) },
		OnCancelled: func() { close(cancelled) },
	})
	room.Mount(ctx)
	defer room.Leave()

	if err := room.Ready(ctx); err != nil {
		return err
	}
	fmt.Println("ready, waiting for the battle to start")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cancelled:
		fmt.Println("battle was cancelled by the leader")
		return nil
	case <-started:
	}

	preview, err := api.GetQuizPreview(ctx, session.QuizID)
	if err != nil {
		return err
	}

	results := make(chan struct{})
	quiz := quizflow.New(quizflow.Config{
		UserID:    userID,
		Channel:   ch,
		Store:     battleStore,
		OnResults: func() { close(results) },
	})
	quiz.Start(ctx, preview)
	defer quiz.Close()

	go answerBot(ctx, quiz)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-results:
	}

	fmt.Println("battle finished, final leaderboard:")
	for i, p := range battleStore.Leaderboard() {
		flag := ""
		if p.IsSuspicious {
			flag = " (suspicious)"
		}
		fmt.Printf("%d. %s - %d pts%s\n", i+1, p.DisplayName, p.Score, flag)
	}
	return nil
}

// answerBot picks an option for every presented question after a short
// think time.
func answerBot(ctx context.Context, quiz *quizflow.Controller) {
	var lastAnswered int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
		if quiz.Phase() != quizflow.PhaseInProgress {
			if quiz.Phase() == quizflow.PhaseUserCompleted {
				completed, total := quiz.CompletionProgress()
				fmt.Printf("done, waiting on the rest (%d/%d), score %d\n", completed, total, quiz.DisplayedScore())
			}
			continue
		}
		if _, revealing := quiz.Revealing(); revealing {
			continue
		}
		question, stem, ok := quiz.CurrentQuestion()
		if !ok || question.ID == lastAnswered || len(question.Options) == 0 {
			continue
		}
		if stem != "" {
			fmt.Printf("[group] %s\n", strip(stem))
		}
		fmt.Printf("Q: %s\n", strip(question.Content))
		option := question.Options[rand.Intn(len(question.Options))]
		lastAnswered = question.ID
		quiz.SelectOption(option.ID)
	}
}

func strip(html string) string {
	replacer := strings.NewReplacer("<p>", "", "</p>", "", "<br>", " ")
	return strings.TrimSpace(replacer.Replace(html))
}

// dialFromConfig picks the channel transport: Redis pub/sub when an address
// is configured, otherwise the coordinator's websocket bridge.
func dialFromConfig(cfg config.Config, apiBaseURL string) channel.DialFunc {
	if strings.EqualFold(cfg.Battle.Transport, "redis") && cfg.Redis.Addr != "" {
		return channel.DialRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	wsURL := strings.Replace(apiBaseURL, "http", "ws", 1) + "/ws"
	return channel.DialWebSocket(wsURL)
}
