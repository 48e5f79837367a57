package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medflow/clinic-workflow/backend/internal/adapters/cache"
	"github.com/medflow/clinic-workflow/backend/internal/adapters/database"
	"github.com/medflow/clinic-workflow/backend/internal/adapters/events"
	"github.com/medflow/clinic-workflow/backend/internal/application/services"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/workflow"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/redis"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	"github.com/medflow/clinic-workflow/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Environment)
	log.Info().Msg("starting workflow engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up telemetry")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("telemetry shutdown failed")
			}
		}()
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisClient.Close()

	bus := events.NewRedisEventBus(redisClient)
	defer bus.Close()

	cacheProvider := cache.NewRedisAdapter(redisClient)

	tokens := database.NewTokenAdapter(pgClient, cfg.Workflow.TokenPrefix, cfg.Workflow.TokenPadding)
	encounters := database.NewCachedEncounterAdapter(database.NewEncounterAdapter(pgClient), cacheProvider)
	doctors := database.NewDoctorAdapter(pgClient)
	tasks := database.NewTaskAdapter(pgClient)
	updates := database.NewTaskUpdateAdapter(pgClient)

	machine := workflow.NewMachine()
	intake := services.NewIntakeService(tokens, encounters, doctors, bus, cfg.Workflow.Departments, metrics)
	ordering := services.NewOrderingService(encounters, tasks, updates, machine, bus, metrics)
	queues, err := services.NewQueueService(tasks, services.QueueRules{
		LabTypeContains:    cfg.Queues.LabTypeContains,
		PharmacyTypeEquals: cfg.Queues.PharmacyTypeEquals,
	}, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid queue rules")
	}
	timeline := services.NewTimelineService(updates)

	go watchQueues(ctx, bus, queues)

	server := newStatsServer(cfg, pgClient, intake, ordering, queues, timeline)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("stats listener starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("stats listener failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("workflow engine shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("stats listener shutdown failed")
	}

	log.Info().Msg("workflow engine stopped")
}

// watchQueues recomputes the role queues whenever a task is created or
// transitioned. The event payload is advisory; the handler re-queries the
// store so a dropped delivery only delays the next refresh.
func watchQueues(ctx context.Context, bus providers.EventBus, queues *services.QueueService) {
	taskSub, err := bus.Subscribe(ctx, providers.TopicTasks)
	if err != nil {
		log.Warn().Err(err).Msg("failed to subscribe to task events")
		return
	}
	defer taskSub.Unsubscribe()

	updateSub, err := bus.Subscribe(ctx, providers.TopicTaskUpdates)
	if err != nil {
		log.Warn().Err(err).Msg("failed to subscribe to task update events")
		return
	}
	defer updateSub.Unsubscribe()

	refresh := func() {
		lab, err := queues.LabQueue(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("lab queue refresh failed")
			return
		}
		pharmacy, err := queues.PharmacyQueue(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("pharmacy queue refresh failed")
			return
		}
		log.Debug().Int("lab", len(lab)).Int("pharmacy", len(pharmacy)).Msg("queues refreshed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-taskSub.Events():
			if !ok {
				return
			}
			refresh()
		case _, ok := <-updateSub.Events():
			if !ok {
				return
			}
			refresh()
		}
	}
}

// newStatsServer exposes health and read-side views over HTTP for
// operators and the panel frontends
func newStatsServer(
	cfg *config.Config,
	pgClient *postgres.Client,
	intake *services.IntakeService,
	ordering *services.OrderingService,
	queues *services.QueueService,
	timeline *services.TimelineService,
) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := pgClient.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /api/encounters/active", func(w http.ResponseWriter, r *http.Request) {
		encounters, err := intake.ListActiveEncounters(r.Context())
		writeJSON(w, encounters, err)
	})

	mux.HandleFunc("GET /api/encounters/{id}", func(w http.ResponseWriter, r *http.Request) {
		panel, err := ordering.DoctorPanel(r.Context(), r.PathValue("id"))
		writeJSON(w, panel, err)
	})

	mux.HandleFunc("GET /api/queues/lab", func(w http.ResponseWriter, r *http.Request) {
		queue, err := queues.LabQueue(r.Context())
		writeJSON(w, queue, err)
	})

	mux.HandleFunc("GET /api/queues/pharmacy", func(w http.ResponseWriter, r *http.Request) {
		queue, err := queues.PharmacyQueue(r.Context())
		writeJSON(w, queue, err)
	})

	mux.HandleFunc("GET /api/timeline", func(w http.ResponseWriter, r *http.Request) {
		groups, err := timeline.Timeline(r.Context())
		writeJSON(w, groups, err)
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
