// Command ripple-relay bridges one Twitch chat channel to a game backend.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Joins the channel's chat, classifies messages into game events, and
//     forwards them fire-and-forget to the ingest endpoint.
//   - Subscribes to the Postgres control channel for voting phase resets.
//   - Exposes an HTTP server with health, readiness, status, and metrics
//     endpoints plus the Twitch OAuth flow and an admin phase-reset hook.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/ripple-relay/chat"
	"github.com/onnwee/ripple-relay/config"
	"github.com/onnwee/ripple-relay/db"
	"github.com/onnwee/ripple-relay/notify"
	"github.com/onnwee/ripple-relay/oauth"
	"github.com/onnwee/ripple-relay/phase"
	"github.com/onnwee/ripple-relay/server"
	"github.com/onnwee/ripple-relay/sink"
	"github.com/onnwee/ripple-relay/telemetry"
	"github.com/onnwee/ripple-relay/twitchauth"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("ripple-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; deployments predating schema_migrations
	// fall back to the embedded SQL path.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resolve the chat credential: env wins, else the stored OAuth row.
	token := cfg.OAuthToken
	if token == "" {
		access, _, _, _, err := db.GetOAuthToken(ctx, database, "twitch")
		if err != nil {
			slog.Warn("stored credential lookup failed", slog.Any("err", err))
		} else if access != "" {
			token = access
			slog.Info("using stored chat credential")
		}
	}

	guard := phase.NewGuard()
	listener := notify.NewListener(cfg.NotifyDSN, cfg.NotifyChannel, guard)
	listener.BackoffBase = cfg.NotifyBackoffBase
	listener.BackoffCap = cfg.NotifyBackoffCap
	listener.MaxAttempts = cfg.NotifyMaxAttempts

	// Without a credential the relay still serves HTTP so the operator can
	// complete the OAuth flow, then restart with the stored token.
	var relay *chat.Relay
	if chatErr := cfg.ValidateChatReady(token); chatErr == nil {
		pipe := &chat.Pipeline{Operator: cfg.Operator, Policy: cfg.VotePolicy, Guard: guard}
		forwarder := sink.New(cfg.SinkURL, cfg.SinkToken, cfg.SinkTimeout)
		// The control subscription starts once chat is up; a reset cannot
		// matter before votes can arrive.
		relay = chat.New(cfg, token, pipe, forwarder, func() {
			go listener.Run(ctx)
		})
	} else {
		slog.Warn("chat relay disabled, serving HTTP only", slog.Any("err", chatErr))
	}

	// Token refresher keeps the stored credential fresh and hands new access
	// tokens to the running session.
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		provider := twitchauth.New(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI, cfg.Scopes)
		var onFresh func(string)
		if relay != nil {
			onFresh = relay.UpdateToken
		}
		oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute,
			func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
				tok, err := provider.Refresh(rctx, refreshToken)
				if err != nil {
					return "", "", time.Time{}, "", err
				}
				return tok.Access, tok.Refresh, tok.Expiry, tok.Scope, nil
			}, onFresh)
	}

	// Control event retention
	go db.StartControlPrune(ctx, database)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/oauth/admin)
	handlers := server.NewHandlers(ctx, database, cfg, guard, listener, relay)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	if relay == nil {
		<-ctx.Done()
		slog.Info("shutting down")
		return
	}

	// The chat session is the process's reason to exist: exhausting the
	// connect budget or losing an established session is fatal, and the
	// supervisor restarts us.
	if err := relay.Run(ctx); err != nil {
		slog.Error("chat relay failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
