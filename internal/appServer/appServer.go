package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/bookit/config"
	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/database/cache"
	"github.com/ds124wfegd/bookit/internal/database/memory"
	repository "github.com/ds124wfegd/bookit/internal/database/postgres"
	"github.com/ds124wfegd/bookit/internal/seed"
	"github.com/ds124wfegd/bookit/internal/service"
	"github.com/ds124wfegd/bookit/internal/transport"
	"github.com/ds124wfegd/bookit/internal/worker"

	"github.com/ds124wfegd/bookit/pkg/broker"
	"github.com/ds124wfegd/bookit/pkg/mailer"
	"github.com/ds124wfegd/bookit/pkg/postgres"
	"github.com/ds124wfegd/bookit/pkg/queue"
	"github.com/ds124wfegd/bookit/pkg/redis"
	"github.com/ds124wfegd/bookit/pkg/retry"
	"github.com/ds124wfegd/bookit/pkg/scheduler"
	"github.com/ds124wfegd/bookit/pkg/telegram"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// store is one wired persistence backend
type store struct {
	experiences database.ExperienceRepository
	slots       database.SlotRepository
	bookings    database.BookingRepository
	promos      database.PromoRepository
	ledger      database.CapacityLedger
	ping        transport.HealthCheck
	close       func()
}

func NewServer(cfg *config.Config) {
	setupLogging(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	st, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.close()

	checks := map[string]transport.HealthCheck{"store": st.ping}

	// Redis is optional: it backs the catalog cache and the notification queue
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to connect to Redis: %v. Continuing without cache and queue...", err)
		} else {
			defer redisClient.Close()
			st.experiences = cache.NewExperienceCache(st.experiences, redisClient, cfg.App.CacheTTL)
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
			logrus.Info("Experience cache enabled")
		}
	}

	// Notification queue
	var tasks service.TaskPublisher
	if cfg.Queue.Enabled && redisClient != nil {
		redisQueue := newQueue(cfg, redisClient)
		if err := redisQueue.Subscribe(ctx, newTaskHandler(cfg).HandleTask); err != nil {
			logrus.Fatalf("Failed to start queue subscriber: %v", err)
		}
		defer redisQueue.Close()

		tasks = service.NewQueueAdapter(redisQueue)
		checks["queue"] = func(ctx context.Context) error {
			_, err := redisQueue.GetQueueStats(ctx)
			return err
		}
		logrus.Info("Queue subscriber started")
	} else {
		logrus.Warn("Task queue disabled, confirmations will not be sent")
	}

	// Event broker
	events, err := broker.New(broker.Config{
		Driver:   cfg.Broker.Driver,
		Brokers:  cfg.Broker.Brokers,
		Topic:    cfg.Broker.Topic,
		URL:      cfg.Broker.URL,
		Exchange: cfg.Broker.Exchange,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize event broker: %v", err)
	}
	defer events.Close()

	// Initialize services
	policy := retry.NewPolicy(cfg.Store.RetryAttempts, cfg.Store.RetryBaseDelay, cfg.Store.CallTimeout)

	pricing, err := service.NewPricingCalculator(cfg.Booking.TaxRate)
	if err != nil {
		logrus.Fatalf("Invalid booking configuration: %v", err)
	}
	promoValidator := service.NewPromoValidator(st.promos, policy)

	bookingService := service.NewBookingService(service.BookingDeps{
		Experiences: st.experiences,
		Slots:       st.slots,
		Bookings:    st.bookings,
		Ledger:      st.ledger,
		Promos:      promoValidator,
		Pricing:     pricing,
		Refs:        service.NewRefGenerator(st.bookings, cfg.Booking.RefAttempts, policy),
		Tasks:       tasks,
		Events:      events,
	},
		service.WithMaxQuantity(cfg.Booking.MaxQuantity),
		service.WithRetryPolicy(policy),
	)
	experienceService := service.NewExperienceService(st.experiences, st.slots, st.ledger, policy)
	auditor := service.NewCapacityAuditor(st.slots, st.bookings, st.ledger, policy)

	// Initialize reconcile worker
	sched, err := scheduler.New()
	if err != nil {
		logrus.Fatalf("Failed to initialize scheduler: %v", err)
	}
	reconcileWorker := worker.NewReconcileWorker(auditor, sched, cfg.Worker.ReconcileInterval)
	if err := reconcileWorker.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start reconcile worker: %v", err)
	}
	defer reconcileWorker.Stop()

	// Initialize handlers
	experienceHandler := transport.NewExperienceHandler(experienceService)
	promoHandler := transport.NewPromoHandler(promoValidator, bookingService)
	bookingHandler := transport.NewBookingHandler(bookingService, cfg.Booking.IdempotencyHeader)
	healthHandler := transport.NewHealthHandler(cfg.Server.AppVersion, checks)

	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		router := transport.InitRoutes(cfg, experienceHandler, promoHandler, bookingHandler, healthHandler)
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr":  cfg.GetServerAddress(),
		"store": cfg.Store.Driver,
	}).Info("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Info("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

	// stop background consumers before the deferred closes run
	cancel()
}

func setupLogging(cfg config.LoggingConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.Store.Driver == "memory" {
		return openMemoryStore(ctx)
	}

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &store{
		experiences: repository.NewExperienceRepository(db),
		slots:       repository.NewSlotRepository(db),
		bookings:    repository.NewBookingRepository(db),
		promos:      repository.NewPromoRepository(db),
		ledger:      repository.NewCapacityLedger(db),
		ping:        pingDB(db),
		close:       func() { db.Close() },
	}, nil
}

// openMemoryStore starts with freshly generated sample data; nothing survives a restart.
func openMemoryStore(ctx context.Context) (*store, error) {
	experiences := memory.NewExperienceRepository()
	slots := memory.NewSlotRepository()
	promos := memory.NewPromoRepository()

	now := time.Now()
	rnd := rand.New(rand.NewPCG(uint64(now.UnixNano()), 0))
	err := seed.Load(ctx, seed.Store{Experiences: experiences, Slots: slots, Promos: promos}, seed.Generate(now, rnd))
	if err != nil {
		return nil, err
	}

	bookings := memory.NewBookingRepository()
	ledger := memory.NewCapacityLedger(slots, bookings)
	logrus.Warn("Using in-memory store, data is not persisted")

	return &store{
		experiences: experiences,
		slots:       slots,
		bookings:    bookings,
		promos:      promos,
		ledger:      ledger,
		ping:        func(context.Context) error { return nil },
		close:       ledger.Close,
	}, nil
}

func pingDB(db *sql.DB) transport.HealthCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func newQueue(cfg *config.Config, client *goredis.Client) *queue.RedisQueue {
	queueCfg := queue.DefaultRedisQueueConfig()
	queueCfg.Prefix = cfg.Queue.Prefix
	queueCfg.MaxRetries = cfg.Queue.MaxRetries
	queueCfg.BaseDelay = cfg.Queue.BaseDelay

	retryManager := queue.NewRetryManager(cfg.Queue.MaxRetries, cfg.Queue.BaseDelay)
	dlqHandler := queue.NewDefaultDLQHandler(client, queueCfg.DLQ(), queueCfg.MainQueue())
	return queue.NewRedisQueue(client, queueCfg, retryManager, dlqHandler)
}

func newTaskHandler(cfg *config.Config) *queue.TaskHandler {
	var m queue.Mailer
	if cfg.Email.Enabled {
		client, err := mailer.New(mailer.Config{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		})
		if err != nil {
			logrus.Errorf("Failed to initialize mailer: %v. Confirmation emails disabled", err)
		} else {
			m = client
			logrus.Info("Mailer initialized")
		}
	}

	var bot queue.TelegramBot
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		bot = telegram.NewBot(cfg.Telegram.BotToken)
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot token not provided, notifications disabled")
	}

	return queue.NewTaskHandler(m, bot, cfg.Telegram.ChatID)
}
