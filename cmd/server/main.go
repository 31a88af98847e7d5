package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/internal/federation/dispatcher"
	federationModel "github.com/tshuldberg/MyLife-sub003/internal/federation/model"
	federationRepo "github.com/tshuldberg/MyLife-sub003/internal/federation/repository"
	federationUsecase "github.com/tshuldberg/MyLife-sub003/internal/federation/usecase"
	friendshipModel "github.com/tshuldberg/MyLife-sub003/internal/friendship/model"
	friendshipRepo "github.com/tshuldberg/MyLife-sub003/internal/friendship/repository"
	"github.com/tshuldberg/MyLife-sub003/internal/handler"
	"github.com/tshuldberg/MyLife-sub003/internal/identity"
	messageModel "github.com/tshuldberg/MyLife-sub003/internal/message/model"
	messageRepo "github.com/tshuldberg/MyLife-sub003/internal/message/repository"
	messageUsecase "github.com/tshuldberg/MyLife-sub003/internal/message/usecase"
	"github.com/tshuldberg/MyLife-sub003/pkg/logger"
)

func main() {
	v, err := config.LoadConfig("config")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	lg, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Bun.DSN))
	sqlDB := sql.OpenDB(connector)
	db := bun.NewDB(sqlDB, pgdialect.New())
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	if err := createTables(ctx, db); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	lg.Info("database initialized")

	friendships := friendshipRepo.NewFriendshipRepository(db, *lg)
	messages := messageRepo.NewMessageRepository(db, *lg)
	outbox := federationRepo.NewFederationRepository(db, *lg)

	verifier := identity.NewVerifier(cfg.Identity)
	disp := dispatcher.NewDispatcher(outbox, *lg, *cfg)

	msgUC := messageUsecase.NewMessageUsecase(messages, friendships, outbox, disp, *lg, *cfg)
	fedUC := federationUsecase.NewFederationUsecase(outbox, messages, friendships, *lg, *cfg)

	router := mux.NewRouter()
	handler.NewMessageHandler(msgUC, verifier, *lg).Register(router)
	handler.NewFederationHandler(fedUC, disp, *lg, *cfg).Register(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			lg.Error("health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"ok":false}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}).Methods(http.MethodGet)

	if cfg.Federation.DispatchIntervalMs > 0 {
		go runDispatchLoop(ctx, disp, lg, cfg)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("server listening", "port", cfg.Server.Port, "federationServer", cfg.Federation.ServerName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	lg.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", "err", err)
	}
}

// runDispatchLoop is the scheduled durability backstop behind the
// best-effort inline dispatch on send.
func runDispatchLoop(ctx context.Context, disp *dispatcher.Dispatcher, lg *logger.Logger, cfg *config.Config) {
	ticker := time.NewTicker(time.Duration(cfg.Federation.DispatchIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := disp.Dispatch(ctx, cfg.Federation.DispatchLimit)
			if err != nil {
				lg.Error("scheduled dispatch failed", "err", err)
				continue
			}
			if summary.Processed > 0 {
				lg.Info("scheduled dispatch run",
					"processed", summary.Processed, "sent", summary.Sent,
					"retried", summary.Retried, "failed", summary.Failed)
			}
		}
	}
}

func createTables(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*messageModel.Message)(nil),
		(*friendshipModel.Friendship)(nil),
		(*federationModel.OutboxEntry)(nil),
		(*federationModel.InboxReceipt)(nil),
	}
	for _, t := range tables {
		if _, err := db.NewCreateTable().Model(t).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
