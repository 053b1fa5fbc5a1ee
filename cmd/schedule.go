package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenderscout/tenderscout/internal/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultCronExpr = "0 */6 * * *"

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the retrieval and scoring pass on a cron schedule until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		schedule(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("cron", "", "cron expression, overrides schedule.cron from the config")
	viper.BindPFlag("schedule.cron", scheduleCmd.Flags().Lookup("cron"))
}

func schedule(_ *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	expr := viper.GetString("schedule.cron")
	if expr == "" {
		expr = defaultCronExpr
	}

	a, err := newApp(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the scheduler", zap.Error(err))
	}
	defer a.Close()

	c := cron.New()
	_, err = c.AddFunc(expr, func() {
		runLogger := a.logger.With(zap.String("run_id", uuid.NewString()))
		runLogger.Info("scheduled run starting")

		result, err := a.pipe.Run(ctx, a.search)
		if err != nil {
			// The next tick retries; a broken upstream should not kill
			// the scheduler.
			runLogger.Error("scheduled run failed", zap.Error(err))
			return
		}

		runLogger.Info("scheduled run complete",
			zap.Int("searched", result.Searched),
			zap.Int("skipped", result.Skipped),
			zap.Int("filtered", result.Filtered),
			zap.Int("failed", result.Failed),
			zap.Int("stored", len(result.Stored)),
		)
	})
	if err != nil {
		logger.Fatal("invalid cron expression", zap.String("cron", expr), zap.Error(err))
	}

	logger.Info("scheduler started", zap.String("cron", expr))
	c.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("scheduler stopping")
	<-c.Stop().Done()
}
