package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/postgres"
	rediscache "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logger"
)

// NewImportCmd loads quizzes from a YAML file into Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate quizzes from a YAML file and store them in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a top-level quizzes list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runImport(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	quizzes, err := readQuizFile(file)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	loader := postgres.NewQuizLoader(pool)

	// Cached copies would otherwise be served until their TTL runs out.
	var cache *rediscache.QuizRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = rediscache.NewQuizRepository(client, loader, config.Duration(cfg.Quiz.TTL, 10*time.Minute))
	}

	for _, quiz := range quizzes {
		if err := loader.UpsertQuiz(ctx, quiz); err != nil {
			return err
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, quiz.ID); err != nil {
				log.Warn().Err(err).Str("quizId", quiz.ID).Msg("cache invalidation failed")
			}
		}
		log.Info().Str("quizId", quiz.ID).Int("questions", len(quiz.Questions)).Msg("quiz imported")
	}
	return nil
}
