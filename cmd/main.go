package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/synccore-backend/internal/data/db"
	"github.com/yungbote/synccore-backend/internal/data/repos/crystals"
	"github.com/yungbote/synccore-backend/internal/domain"
	api "github.com/yungbote/synccore-backend/internal/http"
	httpH "github.com/yungbote/synccore-backend/internal/http/handlers"
	"github.com/yungbote/synccore-backend/internal/observability"
	"github.com/yungbote/synccore-backend/internal/pkg/dbctx"
	"github.com/yungbote/synccore-backend/internal/platform/envutil"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
	"github.com/yungbote/synccore-backend/internal/registry"
	"github.com/yungbote/synccore-backend/internal/services"
)

func main() {
	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "synccore",
		Environment: envutil.Str("DEPLOY_ENV", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),
	})

	// Registry store
	store := registry.NewStore(log, envutil.Int("REGISTRY_KEEP", 0))

	// Persistence (optional)
	var crystalRepo crystals.CrystalRepo
	if dbPath := envutil.Str("SYNCCORE_DB_PATH", ""); dbPath != "" {
		sqliteService, err := db.NewSqliteService(dbPath, log)
		if err != nil {
			log.Error("sqlite init failed", "error", err)
			os.Exit(1)
		}
		if err := sqliteService.AutoMigrateAll(); err != nil {
			log.Error("sqlite automigrate failed", "error", err)
			os.Exit(1)
		}
		crystalRepo = crystals.NewCrystalRepo(sqliteService.DB(), log)

		if err := seedStore(ctx, store, crystalRepo, log); err != nil {
			log.Warn("registry reload failed, starting empty", "error", err)
		}
	} else {
		log.Info("SYNCCORE_DB_PATH not set, registry is memory-only")
	}

	// Services
	ingestService := services.NewIngestService(log, store, crystalRepo)

	// Handlers + router
	srv := api.NewServer(":"+envutil.Str("PORT", "8080"), api.RouterConfig{
		Log:           log,
		HealthHandler: httpH.NewHealthHandler(),
		InhaleHandler: httpH.NewInhaleHandler(log, ingestService, store),
		StateHandler:  httpH.NewStateHandler(log, store),
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
	}
	if otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = otelShutdown(shutdownCtx)
		cancel()
	}
}

// seedStore reloads the persisted registry into memory at boot.
// Corrupt rows are skipped so a bad row never blocks startup.
func seedStore(ctx context.Context, store *registry.Store, repo crystals.CrystalRepo, log *logger.Logger) error {
	rows, err := repo.LoadAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return err
	}
	entries := make([]domain.Crystal, 0, len(rows))
	for _, row := range rows {
		c, err := row.Crystal()
		if err != nil {
			log.Warn("skipping corrupt persisted crystal", "id", row.ID, "error", err)
			continue
		}
		entries = append(entries, c)
	}
	if err := store.Replace(entries); err != nil {
		return err
	}
	log.Info("registry reloaded", "entries", len(entries), "seal", store.Seal())
	return nil
}
