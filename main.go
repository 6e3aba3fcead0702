package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/maiachat/chatsync/internal/auth"
	"github.com/maiachat/chatsync/internal/config"
	"github.com/maiachat/chatsync/internal/directory"
	"github.com/maiachat/chatsync/internal/handlers"
	"github.com/maiachat/chatsync/internal/identity"
	"github.com/maiachat/chatsync/internal/middleware"
	"github.com/maiachat/chatsync/internal/remote"
	"github.com/maiachat/chatsync/internal/session"
	"github.com/maiachat/chatsync/internal/store/sqlstore"
	"github.com/maiachat/chatsync/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg := config.Load()

	st, err := sqlstore.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self := resolveIdentity(ctx, cfg)

	var dialer remote.Dialer
	switch cfg.Adapter {
	case config.AdapterRelay:
		dialer = remote.NewRelayClient(cfg.RelayURL, self)
	default:
		token := auth.SignToken([]byte(cfg.SessionSecret), self.Wallet)
		dialer = remote.NewNodeClient(cfg.NodeURL, token)
	}
	log.WithField("adapter", cfg.Adapter).Info("remote adapter selected")

	sessions := session.NewManager(st, dialer, self, cfg.PollInterval)
	defer sessions.CloseAll()

	dir := directory.New(st, cfg.DirectoryURL)
	push := ws.NewClient(wsURL(cfg.DirectoryURL) + "/ws")
	go push.Run(ctx)
	go dir.Run(ctx, push.Events())

	chatHandler := &handlers.ChatHandler{Store: st, Directory: dir, Sessions: sessions}

	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.RequireToken(cfg.APIToken))

	r.HandleFunc("/chats", chatHandler.GetChats).Methods("GET")
	r.HandleFunc("/chats", chatHandler.CreateChat).Methods("POST")
	r.HandleFunc("/chats/{id}", chatHandler.DeleteChat).Methods("DELETE")
	r.HandleFunc("/chats/{id}/messages", chatHandler.GetChatMessages).Methods("GET")
	r.HandleFunc("/chats/{id}/messages", chatHandler.SendMessage).Methods("POST")
	r.HandleFunc("/chats/{id}/open", chatHandler.OpenChat).Methods("POST")
	r.HandleFunc("/chats/{id}/close", chatHandler.CloseChat).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", middleware.TokenHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: c.Handler(r),
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}

// resolveIdentity looks up the configured user's wallet address. A failed
// lookup is not fatal: the engine runs with an empty wallet and simply never
// attributes messages to the local user.
func resolveIdentity(ctx context.Context, cfg config.Config) identity.Identity {
	self := identity.Identity{UserID: cfg.UserID, Username: cfg.Username}
	if cfg.Username == "" {
		log.Warn("no username configured, messages will not be attributed")
		return self
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resolver := identity.NewResolver(cfg.UserAPIURL)
	wallet, err := resolver.WalletAddress(lookupCtx, cfg.Username)
	if err != nil {
		log.WithError(err).WithField("username", cfg.Username).Warn("wallet lookup failed, continuing without one")
		return self
	}
	self.Wallet = wallet
	log.WithFields(log.Fields{"username": cfg.Username, "wallet": wallet}).Info("identity resolved")
	return self
}

func wsURL(httpURL string) string {
	u := strings.TrimRight(httpURL, "/")
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}
