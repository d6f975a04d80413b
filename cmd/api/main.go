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

	"github.com/zhouzirui/crisis-desk/backend/internal/config"
	"github.com/zhouzirui/crisis-desk/backend/internal/handler"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
	"github.com/zhouzirui/crisis-desk/backend/internal/service/ai"
	"github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
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
	if errors.Is(err, config.ErrMissingAPIKey) {
		log.Fatalf("模型服务密钥未配置，服务无法启动: %v", err)
	}
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize persona store
	presets := persona.Seed()
	if cfg.Persona.File != "" {
		presets, err = persona.LoadFile(cfg.Persona.File, presets)
		if err != nil {
			log.Fatalf("failed to load persona file: %v", err)
		}
		log.Printf("loaded %d persona presets from %s", len(presets), cfg.Persona.File)
	}
	personaStore := persona.NewMemoryStore(presets)
	if _, ok := personaStore.FindByID(cfg.Persona.DefaultID); !ok {
		log.Fatalf("default persona %q not found", cfg.Persona.DefaultID)
	}

	// Initialize model gateway and discovery
	gateway, err := ai.NewGateway(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize model gateway: %v", err)
	}
	log.Printf("model gateway initialized provider=%s", cfg.AI.Provider)

	transcriber, err := ai.NewTranscriber(cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize transcriber: %v", err)
	}

	discovery := ai.NewDiscovery(gateway, ai.DiscoveryConfig{
		Fallback:  cfg.AI.Fallback(),
		Preferred: cfg.AI.Model,
		Hint:      cfg.AI.ModelHint,
	})

	chatService := chat.NewService(chat.Options{
		Personas:         personaStore,
		DefaultPersonaID: cfg.Persona.DefaultID,
		Injector:         ai.NewInjector(cfg.Persona.Strategy),
		Gateway:          gateway,
		Transcriber:      transcriber,
		Discovery:        discovery,
	})
	log.Printf("persona injection strategy=%s default=%s", cfg.Persona.Strategy, cfg.Persona.DefaultID)

	router := handler.NewRouter(personaStore, chatService)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Crisis desk backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
