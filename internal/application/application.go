package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-chat-service/internal/blob"
	"github.com/psds-microservice/ticket-chat-service/internal/config"
	"github.com/psds-microservice/ticket-chat-service/internal/database"
	"github.com/psds-microservice/ticket-chat-service/internal/handler"
	"github.com/psds-microservice/ticket-chat-service/internal/hub"
	"github.com/psds-microservice/ticket-chat-service/internal/kafka"
	"github.com/psds-microservice/ticket-chat-service/internal/router"
	"github.com/psds-microservice/ticket-chat-service/internal/searchindex"
	"github.com/psds-microservice/ticket-chat-service/internal/service"
	"github.com/psds-microservice/ticket-chat-service/internal/store"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket server (mode api).
type API struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	producer *kafka.Producer
	hub      *hub.Hub
	rdb      *goredis.Client
	httpSrv  *http.Server
}

// NewAPI migrates the schema, connects collaborators and builds the router.
func NewAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL(), log); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &API{cfg: cfg, log: log, db: db}

	tickets := store.NewTicketStore(db)
	users := store.NewUserStore(db)
	a.producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log)
	search := searchindex.NewClient(cfg.SearchServiceURL, log)

	svc := service.NewTicketService(service.Deps{
		Tickets:  tickets,
		Users:    users,
		Producer: a.producer,
		Search:   search,
		Logger:   log,
	})
	a.hub = hub.New(svc, hub.Options{
		SendBuffer:      cfg.WS.SendBuffer,
		EventsPerSecond: cfg.WS.EventsPerSecond,
		Burst:           cfg.WS.Burst,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		HandlerTimeout:  cfg.WS.HandlerTimeout,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
		Logger:          log,
	})

	files, err := a.blobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	var fileHandler *handler.FileHandler
	if files != nil {
		fileHandler = handler.NewFileHandler(files, log)
	} else {
		log.Warn("S3_BUCKET not set: file upload disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	sqlDB, err := db.DB()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	engine := router.New(router.Handlers{
		Tickets: handler.NewTicketHandler(svc, service.NewQueryEngine(tickets, users), a.hub, log),
		Files:   fileHandler,
		Users:   users,
		Ready:   handler.Ready(sqlDB.PingContext),
		WS:      a.hub.ServeWS,
		Logger:  log,
	})

	a.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// blobStore returns nil when no bucket is configured.
func (a *API) blobStore(ctx context.Context) (blob.Store, error) {
	if a.cfg.S3.Bucket == "" {
		return nil, nil
	}
	s3, err := blob.NewS3Store(ctx, blob.S3Config{
		Endpoint:        a.cfg.S3.Endpoint,
		Region:          a.cfg.S3.Region,
		Bucket:          a.cfg.S3.Bucket,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
		PresignTTL:      a.cfg.S3.PresignTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	if a.cfg.Redis.Addr == "" {
		return s3, nil
	}
	rdb, err := blob.NewRedis(ctx, blob.RedisConfig{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		a.log.Warn("signed url cache disabled", slog.Any("err", err))
		return s3, nil
	}
	a.rdb = rdb
	return blob.NewCachedStore(s3, rdb, s3.TTL(), a.log), nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening",
		slog.String("addr", a.httpSrv.Addr),
		slog.String("swagger", base+"/swagger"),
		slog.String("ws", "ws://"+host+":"+a.cfg.HTTPPort+"/ws"),
		slog.String("api", base+"/api/v1/"),
		slog.Bool("kafka", a.producer.Enabled()))

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.httpSrv.Shutdown(shutdownCtx)
	a.hub.CloseAll()
	a.Close()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases collaborators. Safe after a failed NewAPI.
func (a *API) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka close", slog.Any("err", err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
