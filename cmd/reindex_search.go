package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/psds-microservice/ticket-chat-service/internal/config"
	"github.com/psds-microservice/ticket-chat-service/internal/database"
	"github.com/psds-microservice/ticket-chat-service/internal/kafka"
	"github.com/psds-microservice/ticket-chat-service/internal/logger"
	"github.com/psds-microservice/ticket-chat-service/internal/searchindex"
	"github.com/psds-microservice/ticket-chat-service/internal/store"
	"github.com/spf13/cobra"
)

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex all tickets into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReindexSearch,
}

func init() {
	rootCmd.AddCommand(reindexSearchCmd)
}

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg)
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer database.Close(conn)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	tickets, err := store.NewTicketStore(conn).All(ctx)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Info("reindex-search: loaded tickets", slog.Int("count", len(tickets)))

	progress := func(i int, via string) {
		if (i+1)%50 == 0 || i == len(tickets)-1 {
			log.Info("reindex-search: progress", slog.String("via", via), slog.Int("done", i+1), slog.Int("total", len(tickets)))
		}
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopicTicket != "" {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log)
		defer producer.Close()
		for i := range tickets {
			producer.ProduceTicketEvent(ctx, kafka.EventTicketUpdated, kafka.TicketPayload(&tickets[i]))
			progress(i, "kafka")
		}
		log.Info("reindex-search: done; search-service worker will index the events", slog.Int("sent", len(tickets)))
		return nil
	}
	if cfg.SearchServiceURL != "" {
		client := searchindex.NewClient(cfg.SearchServiceURL, log)
		failed := 0
		for i := range tickets {
			if err := client.IndexTicket(ctx, &tickets[i]); err != nil {
				failed++
				log.Warn("reindex-search: index ticket", slog.String("ticket_id", tickets[i].ID.String()), slog.Any("err", err))
			}
			progress(i, "http")
		}
		log.Info("reindex-search: done", slog.Int("indexed", len(tickets)-failed), slog.Int("failed", failed))
		return nil
	}
	log.Warn("reindex-search: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set, nothing reindexed", slog.Int("tickets", len(tickets)))
	return nil
}
