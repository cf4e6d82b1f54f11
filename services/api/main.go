package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linguachat/internal/ai"
	"github.com/linguachat/internal/config"
	"github.com/linguachat/internal/email"
	"github.com/linguachat/internal/handler"
	"github.com/linguachat/internal/invite"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/push"
	"github.com/linguachat/internal/repository"
	"github.com/linguachat/internal/startup"
	"github.com/linguachat/internal/storage"
	"github.com/linguachat/internal/storage/memory"
	"github.com/linguachat/internal/translate"
	"github.com/linguachat/internal/ws"
	"github.com/linguachat/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory store (no external deps)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	// В -dev всё быстрое хранится в памяти процесса; в остальных случаях Redis.
	var store storage.Store
	if *dev {
		store = memory.New()
	} else {
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
	}
	defer store.Close()

	userRepo := repository.NewUserRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)

	inviteSvc := invite.NewService(store, chatRepo, cfg.InviteTTL)
	translator := translate.NewClient(cfg.TranslateServiceURL, store)
	aiClient := ai.NewClient(cfg.AIServiceURL)
	mailer := email.NewSender(&cfg.SMTP)

	vapidKeys := loadVAPIDKeys(cfg)
	notifier := push.NewNotifier(vapidKeys, cfg.PushSubscriber, store)

	registry := ws.NewRegistry(chatRepo, cfg.MaxWSConnections)
	router := ws.NewRouter(registry, chatRepo, msgRepo, userRepo, translator, aiClient, notifier)

	authH := handler.NewAuthHandler(userRepo, store)
	langH := handler.NewLanguageHandler()
	chatH := handler.NewChatHandler(chatRepo, userRepo, msgRepo, inviteSvc, mailer, cfg.PublicBaseURL)
	wizardH := handler.NewWizardHandler(chatH)
	joinH := handler.NewJoinHandler(inviteSvc)
	wsH := handler.NewWSHandler(registry, router, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(publicVAPIDKey(vapidKeys))
	pushH := handler.NewPushHandler(store)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/languages", langH.List)
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Post("/api/auth/session", authH.CreateSession)
	// Превью приглашения доступно до логина.
	r.Get("/api/chat/join", joinH.Validate)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(store))
		r.Get("/api/auth/me", authH.Me)
		r.Post("/api/chat/create", chatH.CreateChat)
		r.Post("/api/chat/invite", chatH.Invite)
		r.Post("/api/chat/join", joinH.Join)
		r.Get("/api/chats", chatH.ListChats)
		r.Get("/api/chats/{chatID}", chatH.GetChat)
		r.Get("/api/chats/{chatID}/messages", chatH.GetMessages)
		r.Post("/api/chat/wizard/start", wizardH.Start)
		r.Get("/api/chat/wizard", wizardH.State)
		r.Post("/api/chat/wizard/language", wizardH.SelectLanguage)
		r.Post("/api/chat/wizard/mode", wizardH.SelectMode)
		r.Post("/api/chat/wizard/next", wizardH.Next)
		r.Post("/api/chat/wizard/back", wizardH.Back)
		r.Post("/api/chat/wizard/invite-emails", wizardH.AddInviteEmail)
		r.Delete("/api/chat/wizard/invite-emails", wizardH.RemoveInviteEmail)
		r.Post("/api/chat/wizard/invitations", wizardH.SendInvitations)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	webDist := "./web/dist"
	if info, err := os.Stat(webDist); err == nil && info.IsDir() {
		r.Get("/*", spaHandler(webDist))
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	registry.Close()
	logger.Info("registry stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// loadVAPIDKeys: явные ключи из env приоритетны, иначе файл (с генерацией при первом старте).
func loadVAPIDKeys(cfg *config.Config) *push.VAPIDKeys {
	if cfg.PushVAPIDPublicKey != "" && cfg.PushVAPIDPrivateKey != "" {
		return &push.VAPIDKeys{PublicKey: cfg.PushVAPIDPublicKey, PrivateKey: cfg.PushVAPIDPrivateKey}
	}
	keys, err := push.EnsureVAPIDKeys("")
	if err != nil {
		logger.Errorf("vapid keys: %v (push disabled)", err)
		return nil
	}
	return keys
}

func publicVAPIDKey(keys *push.VAPIDKeys) string {
	if keys == nil {
		return ""
	}
	return keys.PublicKey
}

func spaHandler(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Open(path); err != nil {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		} else {
			f.Close()
			fileServer.ServeHTTP(w, r)
		}
	}
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	files := []string{"001_init.sql"}
	for _, f := range files {
		data, err := migrations.Files.ReadFile(f)
		if err != nil {
			logger.Errorf("read migration %s: %v", f, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", f, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "linguachat"
		password = "linguachat_secret"
		database = "linguachat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
