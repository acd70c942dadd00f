package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/grading"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	rediscache "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/scoring"
	"quiz-attempt-service/internal/logger"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
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
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

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

	service, closeDeps, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      newMux(service),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz attempt service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService wires storage, caching and grading from cfg. The returned func
// releases every connection that was opened.
func buildService(ctx context.Context, cfg config.Config) (*app.AttemptService, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var loader memory.QuizLoader
	var results app.ResultStore = memory.NewResultStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		loader = postgres.NewQuizLoader(pool)

		db := postgres.OpenDB(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		results = postgres.NewResultStore(db)
	} else {
		quizzes := sampleQuizzes()
		if cfg.Quiz.File != "" {
			fromFile, err := readQuizFile(cfg.Quiz.File)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			quizzes = quizzesByID(fromFile)
		}
		log.Warn().Int("quizzes", len(quizzes)).Msg("postgres not configured, serving quizzes from memory")
		loader = memory.NewStaticQuizLoader(quizzes)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var attempts app.AttemptRepository
	if redisClient != nil {
		quizRepo = rediscache.NewQuizRepository(redisClient, loader, quizTTL)
		attempts = rediscache.NewAttemptStore(redisClient, config.Duration(cfg.Redis.TTL, 10*time.Minute))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore()
	}

	var scorer app.Scorer = grading.NewGrader(quizRepo)
	if cfg.Scoring.URL != "" {
		scorer = scoring.NewClient(cfg.Scoring.URL, config.Duration(cfg.Scoring.Timeout, 10*time.Second))
		log.Info().Str("url", cfg.Scoring.URL).Msg("grading through remote scorer")
	}

	service := app.NewAttemptService(attempts, quizRepo, scorer,
		app.WithResultStore(results),
		app.WithTickInterval(config.Duration(cfg.Attempt.Tick, time.Second)),
	)
	return service, closeAll, nil
}

func newMux(service *app.AttemptService) *http.ServeMux {
	wsHandler := transport.NewWSHandler(service)
	lbHandler := transport.NewLeaderboardHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/ws/leaderboard", lbHandler.ServeWS)
	mux.Handle("/leaderboard", lbHandler)
	return mux
}

// sampleQuizzes is served when neither Postgres nor a quiz file is configured.
func sampleQuizzes() map[string]domain.Quiz {
	limit := 120
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Warm-up",
			TimeLimitSeconds: &limit,
			Questions: []domain.Question{
				{
					ID: "q1", Order: 1, Type: domain.QuestionSingleChoice, Points: 1,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID: "q2", Order: 2, Type: domain.QuestionMultiSelect, Points: 2,
					Prompt: "Which of these are prime?",
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "7", Correct: true},
					},
				},
				{
					ID: "q3", Order: 3, Type: domain.QuestionTrueFalse, Points: 1,
					Prompt: "The Earth orbits the Sun.",
					Options: []domain.Option{
						{ID: "true", Text: "True", Correct: true},
						{ID: "false", Text: "False"},
					},
				},
				{
					ID: "q4", Order: 4, Type: domain.QuestionFreeText, Points: 2,
					Prompt:  "Chemical symbol for gold?",
					Options: []domain.Option{{ID: "answer", Text: "Au", Correct: true}},
				},
			},
		},
	}
}
