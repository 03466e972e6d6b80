package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/config"
	"github.com/zhouzirui/gemdesk/backend/internal/handler"
	"github.com/zhouzirui/gemdesk/backend/internal/logging"
	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	settingsmodel "github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/platform"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/gemdesk/backend/internal/service/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
	settingsservice "github.com/zhouzirui/gemdesk/backend/internal/service/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 本地加密存储
	kv, err := store.OpenPebble(cfg.Storage.StorePath(), cfg.Storage.QuotaBytes)
	if err != nil {
		logger.Fatal("store_open_failed", zap.String("path", cfg.Storage.StorePath()), zap.Error(err))
	}
	cipher, err := store.NewCipher(cfg.Storage.StoreSecret())
	if err != nil {
		logger.Fatal("store_cipher_failed", zap.Error(err))
	}
	st := store.New(kv, cipher, logger.Named("store"))
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()

	sessionBlob := store.NewBlob(st, store.KeySessions, func() chat.Sessions { return nil })
	settingsBlob := store.NewBlob(st, store.KeySettings, settingsmodel.Default)
	gemBlob := store.NewBlob(st, store.KeyGems, func() []persona.Persona { return nil })

	personaStore, err := persona.NewPersistentStore(gemBlob, persona.Seed())
	if err != nil {
		logger.Warn("persona_seed_persist_failed", zap.Error(err))
	}
	chatSvc := chatservice.NewService(sessionBlob, logger.Named("sessions"))
	settingsSvc := settingsservice.NewService(settingsBlob, cfg.AI.BootstrapAPIKey, cfg.AI.DefaultModel, logger.Named("settings"))

	cache, err := media.NewCache(cfg.Storage.MediaPath(), logger.Named("media"))
	if err != nil {
		logger.Fatal("media_cache_failed", zap.String("dir", cfg.Storage.MediaPath()), zap.Error(err))
	}

	// 模型网关
	pool := ai.NewClientPool(cfg.AI.BaseURL)
	backend := ai.NewGenAIBackend(pool, cfg.AI.VideoPollInterval, logger.Named("genai"))
	generator := ai.NewGenerator(backend, cache, logger.Named("generate"))
	aiSvc := ai.NewService(ai.NewChatModelFactory(pool, cfg.AI.ArkBaseURL), backend, cache, generator, ai.Options{
		ImageModel:     cfg.AI.ImageModel,
		VideoModel:     cfg.AI.VideoModel,
		RetryBaseDelay: cfg.AI.RetryBaseDelay,
		MaxRetries:     cfg.AI.MaxRetries,
		ModelsTTL:      cfg.AI.ModelsTTL,
	}, logger.Named("ai"))

	ctrl := conversation.NewController(chatSvc, aiSvc, cache, personaStore, cfg.AI.DefaultModel, logger.Named("conversation"))
	dir := directory.New(chatSvc, personaStore, cache, logger.Named("directory"),
		directory.WithSessionDeleted(ctrl.Forget),
		directory.WithPersonaDeleted(ctrl.ForgetPersona),
		directory.WithBusyCheck(ctrl.Sending),
	)
	if n := dir.Reconcile(); n > 0 {
		logger.Info("dangling_personas_cleared", zap.Int("sessions", n))
	}

	router := handler.NewRouter(handler.Deps{
		Controller:     ctrl,
		Directory:      dir,
		Settings:       settingsSvc,
		Generator:      aiSvc,
		Media:          cache,
		Clipboard:      platform.SystemClipboard{},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	startServer(ctx, logger, cfg.Server, router)
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("server_listening", zap.String("addr", addr), zap.String("platform", platform.ID()))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server_error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
