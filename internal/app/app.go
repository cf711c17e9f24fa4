package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"habitTracker/internal/auth"
	"habitTracker/internal/changefeed"
	"habitTracker/internal/changefeed/memory"
	"habitTracker/internal/changefeed/pgnotify"
	"habitTracker/internal/changefeed/redisfeed"
	"habitTracker/internal/config"
	"habitTracker/internal/handlers"
	"habitTracker/internal/logger"
	"habitTracker/internal/middleware"
	"habitTracker/internal/repository"
	habitinmemory "habitTracker/internal/repository/habit/inmemory"
	habitpostgres "habitTracker/internal/repository/habit/postgres"
	"habitTracker/internal/repository/migrations"
	taskinmemory "habitTracker/internal/repository/task/inmemory"
	taskpostgres "habitTracker/internal/repository/task/postgres"
	"habitTracker/internal/service"
	"habitTracker/internal/slices"
	"habitTracker/internal/worker"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	apiTimeout      = 30 * time.Second
)

type App struct {
	config *config.Config
	server *http.Server
	router *chi.Mux

	pool     *pgxpool.Pool
	redis    *redis.Client
	broker   *memory.Broker
	listener *pgnotify.Listener

	source    changefeed.Source
	publisher changefeed.Publisher

	taskRepo  service.TaskRepository
	habitRepo service.HabitRepository

	tasks     *service.TaskService
	habits    *service.HabitService
	analytics *service.AnalyticsService

	signer *auth.Signer
	hub    *slices.Hub
	worker *worker.RolloverWorker

	// живёт, пока работает сервер; на нём держатся websocket сессии
	baseCtx    context.Context
	cancelBase context.CancelFunc

	shutdowns []func() error // выполняются в обратном порядке
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func() error, 0),
	}
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development, a.config.Logging.Verbose); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() error {
		logger.Info("App: Завершение работы логгирования...")
		logger.Sync()
		return nil
	})

	a.baseCtx, a.cancelBase = context.WithCancel(context.Background())

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"хранилище", a.initStorage},
		{"фид изменений", a.initFeed},
		{"репозитории", a.initRepositories},
		{"сервисы", a.initServices},
		{"маршруты", a.initRouter},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			shutdownErr := a.Shutdown()
			return nil, multierr.Append(fmt.Errorf("инициализация (%s): %w", step.name, err), shutdownErr)
		}
	}

	a.server = &http.Server{
		Addr:              a.config.GetServerAddr(),
		Handler:           otelhttp.NewHandler(a.router, "habit-tracker"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("App: Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.String("feed", a.config.Realtime.Feed),
		zap.String("addr", a.server.Addr))
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	if a.config.Repository.Type != config.RepositoryPostgres {
		return nil
	}
	if a.config.Database.Migrate {
		if err := migrations.Up(a.config.Database.URL); err != nil {
			return err
		}
	}
	pool, err := repository.NewPool(ctx, a.config.Database)
	if err != nil {
		return err
	}
	a.pool = pool
	a.shutdowns = append(a.shutdowns, func() error {
		logger.Info("App: Закрытие пула соединений")
		pool.Close()
		return nil
	})
	return nil
}

func (a *App) initFeed(ctx context.Context) error {
	switch a.config.Realtime.Feed {
	case config.FeedRedis:
		client, err := redisfeed.Connect(ctx, a.config.Realtime.RedisAddr, a.config.Realtime.RedisPassword, a.config.Realtime.RedisDB)
		if err != nil {
			return err
		}
		a.redis = client
		feed := redisfeed.New(client)
		a.source, a.publisher = feed, feed
		a.shutdowns = append(a.shutdowns, client.Close)

	case config.FeedPostgres:
		// строки публикуют триггеры базы, репозиториям публиковать нечего
		a.listener = pgnotify.New(a.pool)
		a.source, a.publisher = a.listener, changefeed.Discard

	default:
		a.broker = memory.NewBroker()
		a.source, a.publisher = a.broker, a.broker
		a.shutdowns = append(a.shutdowns, a.broker.Close)
	}
	return nil
}

func (a *App) initRepositories(ctx context.Context) error {
	if a.pool != nil {
		a.taskRepo = taskpostgres.New(a.pool, a.publisher)
		a.habitRepo = habitpostgres.New(a.pool, a.publisher)
		return nil
	}
	a.taskRepo = taskinmemory.NewTaskStorage(a.publisher)
	a.habitRepo = habitinmemory.NewHabitStorage(a.publisher)
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	loc := a.config.Location()
	a.tasks = service.NewTaskService(a.taskRepo)
	a.habits = service.NewHabitService(a.habitRepo, loc)
	a.analytics = service.NewAnalyticsService(a.taskRepo, a.habitRepo, loc)

	signer, err := auth.NewSigner(a.config.Auth.JWTSecret, a.config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	a.signer = signer

	a.hub = slices.NewHub()
	interval := a.config.Worker.RolloverInterval
	a.worker = worker.NewRolloverWorker(a.hub, &interval, loc)
	return nil
}

func (a *App) newSession(userID uuid.UUID, out slices.Outbox) *slices.Session {
	return slices.NewSession(userID, slices.Deps{
		Tasks:      a.tasks,
		Habits:     a.habits,
		Events:     a.habitRepo,
		Analytics:  a.analytics,
		Source:     a.source,
		Debounce:   a.config.Realtime.AnalyticsDebounce,
		StatusPoll: a.config.Realtime.StatusPoll,
	}, out)
}

func (a *App) initRouter(ctx context.Context) error {
	taskHandler := handlers.NewTaskHandler(a.tasks)
	habitHandler := handlers.NewHabitHandler(a.habits)
	analyticsHandler := handlers.NewAnalyticsHandler(a.analytics)
	realtimeHandler := handlers.NewRealtimeHandler(a.hub)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"tasks":  a.tasks,
		"habits": a.habits,
	})
	wsHandler := handlers.NewWSHandler(a.baseCtx, a.hub, a.newSession, a.config.Auth.SiteURL)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	if a.config.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(a.config.Server.RateLimit))
	}
	r.Use(cors.Handler(corsOptions(a.config.Auth.SiteURL)))

	r.Get("/health", healthHandler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.With(middleware.Auth(a.signer)).Get("/ws", wsHandler.Serve)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(a.signer))
		r.Use(chimiddleware.Timeout(apiTimeout))

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks) // GET /api/tasks
			r.Post("/", taskHandler.PostTask) // POST /api/tasks

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTaskByID)       // GET /api/tasks/{id}
				r.Put("/", taskHandler.UpdateTaskByID)    // PUT /api/tasks/{id}
				r.Delete("/", taskHandler.DeleteTaskByID) // DELETE /api/tasks/{id}
			})
		})

		r.Route("/habits", func(r chi.Router) {
			r.Get("/", habitHandler.ListHabits)
			r.Post("/", habitHandler.PostHabit)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", habitHandler.GetHabitByID)
				r.Put("/", habitHandler.UpdateHabitByID)
				r.Delete("/", habitHandler.DeleteHabitByID)

				r.Get("/events", habitHandler.ListEvents)         // GET /api/habits/{id}/events
				r.Post("/events", habitHandler.CompleteHabit)     // POST /api/habits/{id}/events?date=
				r.Delete("/events", habitHandler.UncompleteHabit) // DELETE /api/habits/{id}/events?date=
			})
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", analyticsHandler.Summary)
			r.Get("/streaks", analyticsHandler.Streaks)
			r.Get("/streaks/{habitId}/chart", analyticsHandler.Chart)
			r.Get("/completion-rates", analyticsHandler.CompletionRates)
			r.Get("/export/csv", analyticsHandler.ExportCSV)
		})

		r.Get("/realtime/status", realtimeHandler.Status)
	})

	a.router = r
	return nil
}

func corsOptions(siteURL string) cors.Options {
	origins := []string{"*"}
	if siteURL != "" {
		origins = []string{siteURL}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: siteURL != "",
		MaxAge:           300,
	}
}

// Handler - корневой обработчик без otel обёртки; нужен тестам
func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Signer() *auth.Signer {
	return a.signer
}

func (a *App) Hub() *slices.Hub {
	return a.hub
}

// Run блокируется до отмены ctx или падения одного из компонентов
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("App: Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.worker.Start(gctx)
		return nil
	})

	if a.listener != nil {
		g.Go(func() error {
			return a.listener.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown останавливает сервер и освобождает ресурсы, собирая все ошибки
func (a *App) Shutdown() error {
	var err error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("App: Остановка HTTP сервера")
		err = multierr.Append(err, a.server.Shutdown(ctx))
	}
	// сессии закрываются до фида и пула, на которых они держатся
	if a.cancelBase != nil {
		a.cancelBase()
	}
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.shutdowns[i]())
	}
	a.shutdowns = nil
	return err
}
