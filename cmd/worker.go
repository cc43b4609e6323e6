package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/sugang-app/apiserver/config"
	"github.com/sugang-app/apiserver/internal/db"
	"github.com/sugang-app/apiserver/internal/metrics"
	"github.com/sugang-app/apiserver/internal/mq"
	"github.com/sugang-app/apiserver/internal/registration"
	"github.com/sugang-app/apiserver/internal/server"
	"github.com/sugang-app/apiserver/internal/store"
)

// workerCmd runs the registration intent consumer.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the registration queue worker",
	Long: `Runs the registration queue worker. It drains intent batches from the
queue and applies them to the database. Usage:

	sugang worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		queue, err := server.NewQueue(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer queue.Close()

		collector := metrics.NewCollector(prometheus.NewRegistry())
		consumer := registration.NewConsumer(
			store.NewRegistrationRepository(dbConn),
			store.NewStatusRepository(dbConn),
			collector,
		)

		log.Printf("[worker] consuming %q (batch size %d)",
			cfg.Registration.Channel, cfg.Registration.BatchSize)

		err = queue.SubscribeBatch(ctx, cfg.Registration.Channel, mq.BatchOptions{
			Size:        cfg.Registration.BatchSize,
			FlushMillis: cfg.Registration.BatchFlushMillis,
		}, consumer.ProcessBatch)
		if errors.Is(err, context.Canceled) {
			log.Println("[worker] shutting down")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
