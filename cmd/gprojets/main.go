package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/gprojets/gprojets/auth"
	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/globals"
	"github.com/gprojets/gprojets/persistence"
	"github.com/gprojets/gprojets/scanner"
	"github.com/gprojets/gprojets/ws"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		// without durable storage the persist-before-broadcast guarantee
		// cannot hold, refuse to start
		panic("no persistence configured")
	}
	defer persister.Close()

	verifier, err := buildVerifier(globalConfig)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		globals.AppLogger.Info("interrupted, shutting down")
		cancel()
	}()

	hub := ws.NewHub(globalConfig, persister)
	go hub.Run(ctx)

	deadlineScanner, err := scanner.New(persister, hub, globalConfig.ScannerConfig)
	if err != nil {
		panic(err)
	}
	scannerDone := make(chan struct{})
	go func() {
		defer close(scannerDone)
		deadlineScanner.Run(ctx)
	}()

	router := mux.NewRouter()
	router.HandleFunc("/notifications", websocketHandler(hub, verifier)).Methods(http.MethodGet)
	router.HandleFunc("/api/messages", messagesHandler(globalConfig, persister)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	srv := &http.Server{Addr: *addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = srv.ListenAndServeTLS(*sslCert, *sslKey)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		globals.AppLogger.Error("stopped listening", "error", err)
	}
	<-scannerDone
}

// buildVerifier assembles the bearer-token verifier chain from the
// configuration: HMAC tokens first, OIDC providers second, wrapped in a
// token cache. Returns nil when no verification is configured, in which
// case every connection is a guest.
func buildVerifier(cfg *config.Config) (auth.Verifier, error) {
	chain := auth.ChainVerifier{}
	if cfg.AuthConfig.JWTSecret != "" {
		chain = append(chain, auth.NewHMACVerifier([]byte(cfg.AuthConfig.JWTSecret), cfg.AuthConfig.JWTIssuer))
	}
	if len(cfg.AuthConfig.OIDCConfigs) > 0 {
		chain = append(chain, auth.NewOIDCVerifier(cfg.AuthConfig.OIDCConfigs))
	}
	if len(chain) == 0 {
		globals.AppLogger.Warn("no token verification configured, all connections are guests")
		return nil, nil
	}
	return auth.NewCachingVerifier(chain, cfg.AuthConfig.TokenCacheSize, cfg.AuthConfig.TokenTTL)
}

// resolveIdentity resolves the connecting user from the presented bearer
// token. Malformed or missing credentials never reject the connection, they
// degrade to a guest identity with no group membership.
func resolveIdentity(r *http.Request, verifier auth.Verifier) *auth.Identity {
	token := auth.TokenFromRequest(r)
	if token == "" || verifier == nil {
		return auth.Guest()
	}
	ident, err := verifier.Verify(r.Context(), token)
	if err != nil {
		globals.AppLogger.Warn("could not verify token, connecting as guest", "error", err)
		return auth.Guest()
	}
	return ident
}

// Handle incoming websockets.
func websocketHandler(hub *ws.Hub, verifier auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident := resolveIdentity(r, verifier)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			globals.AppLogger.Error("websocket upgrade error", "error", err)
			return
		}
		// when this frame returns close the websocket
		defer conn.Close() //nolint

		globals.AppLogger.Info("connected", "user", ident.Email, "role", ident.Role)

		doneChan := make(chan struct{})
		client := ws.NewClient(hub, conn, ident, doneChan)

		// wait until the hub actually registered the client, so broadcasts
		// that follow reach it
		client.Add(1)
		hub.Register <- client
		client.Wait()
		defer func() {
			hub.Unregister <- client
		}()

		client.Add(2)
		go client.ReadLoop()
		go client.WriteLoop()

		<-doneChan
		globals.AppLogger.Info("disconnected", "user", ident.Email, "connection", client.Id)
	}
}

// messagesHandler serves the chat history consumed by clients on initial
// load: the most recent messages, oldest first.
func messagesHandler(cfg *config.Config, persister persistence.Persister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := cfg.HistoryConfig.Size
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= limit {
				limit = n
			}
		}
		messages, err := persister.MessageHistory(limit)
		if err != nil {
			globals.AppLogger.Error("could not read message history", "error", err)
			http.Error(w, "could not read message history", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messages); err != nil {
			globals.AppLogger.Error("could not write message history", "error", err)
		}
	}
}
