package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Goofygiraffe06/blaze/api"
	"github.com/Goofygiraffe06/blaze/internal/agent"
	"github.com/Goofygiraffe06/blaze/internal/auth"
	"github.com/Goofygiraffe06/blaze/internal/config"
	"github.com/Goofygiraffe06/blaze/internal/conversation"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/mail"
	"github.com/Goofygiraffe06/blaze/internal/manager"
	"github.com/Goofygiraffe06/blaze/internal/metrics"
	"github.com/Goofygiraffe06/blaze/store"
	"github.com/Goofygiraffe06/blaze/store/ephemeral"
	"github.com/Goofygiraffe06/blaze/store/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type codeStore interface {
	store.CodeStore
	Close() error
}

func main() {
	f, err := logging.InitLogger("blaze.log")
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer f.Close()
	defer logging.Sync()

	logging.InfoLog("Starting BLAZE server")

	tokens, err := auth.NewIssuer([]byte(config.JWTSecret()), config.JWTIssuer(), config.JWTExpiresIn())
	if err != nil {
		logging.FatalLog("Invalid JWT configuration: %v", err)
	}

	dbFile := config.DBPath()
	if _, err := os.Stat(dbFile); err == nil {
		if err := os.Chmod(dbFile, 0600); err != nil {
			logging.ErrorLog("Failed to set restrictive permissions on %s: %v", dbFile, err)
		}
	}
	users, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		logging.FatalLog("Failed to connect to DB: %v", err)
	}
	defer users.Close()
	logging.InfoLog("Connected to SQLite database: %s", dbFile)

	codes := openCodeStore(users)
	defer codes.Close()

	adapter, err := agent.NewClient(agent.Config{
		BaseURL: config.LLMBaseURL(),
		APIKey:  config.LLMAPIKey(),
		Model:   config.LLMModel(),
		Timeout: config.LLMTimeout(),
	})
	if err != nil {
		logging.FatalLog("Invalid LLM configuration: %v", err)
	}

	mailer := mail.New(mailConfig())
	if !mailer.Enabled() {
		logging.Warn("one-time codes will not be mailed", zap.String("reason", "SMTP_ADDR not set"))
	}

	work := manager.NewWorkManager()
	defer work.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	engine := conversation.NewEngine(adapter, &conversation.Services{
		Users:      users,
		Codes:      codes,
		Tokens:     tokens,
		Mailer:     mailer,
		Work:       work,
		CodeTTL:    config.OTPTTL(),
		CodeLength: config.OTPLength(),
	},
		conversation.WithMetrics(m),
		conversation.WithPolicy(conversation.Policy{
			PasswordMinLength: config.PasswordMinLength(),
			MaxStepAttempts:   config.MaxStepAttempts(),
		}),
	)

	srv := &http.Server{
		Addr: ":" + config.ServerPort(),
		Handler: api.NewRouter(api.Deps{
			Engine:         engine,
			Metrics:        m,
			Gatherer:       registry,
			AllowedOrigins: config.CORSAllowedOrigins(),
			MaxFrameBytes:  config.MaxFrameBytes(),
			PingInterval:   config.SocketPingInterval(),
		}),
		ReadHeaderTimeout: config.ServerReadHeaderTimeout(),
		IdleTimeout:       config.ServerIdleTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.InfoLog("BLAZE server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLog("Server failed: %v", err)
		}
	case sig := <-stop:
		logging.InfoLog("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.ErrorLog("Graceful shutdown failed: %v", err)
		}
	}
}

// openCodeStore picks the one-time code backend named by CODE_STORE.
func openCodeStore(users *store.SQLiteStore) codeStore {
	switch backend := config.CodeStoreBackend(); backend {
	case "redis":
		rs := redis.New(config.RedisAddr(), config.RedisPassword(), config.RedisDB())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			logging.FatalLog("Failed to reach Redis at %s: %v", config.RedisAddr(), err)
		}
		logging.InfoLog("One-time codes stored in Redis at %s", config.RedisAddr())
		return rs
	case "memory":
		logging.InfoLog("One-time codes stored in memory")
		return ephemeral.NewCodeStore()
	case "sqlite", "":
		return noClose{users}
	default:
		logging.FatalLog("Unknown CODE_STORE backend %q", backend)
		return nil
	}
}

// noClose lets the user store double as the code store without closing twice.
type noClose struct{ *store.SQLiteStore }

func (noClose) Close() error { return nil }

func mailConfig() mail.Config {
	cfg := mail.Config{
		Addr:         config.SMTPAddr(),
		Username:     config.SMTPUsername(),
		Password:     config.SMTPPassword(),
		From:         config.SMTPFrom(),
		DKIMDomain:   config.DKIMDomain(),
		DKIMSelector: config.DKIMSelector(),
	}
	security, err := mail.ParseSecurity(config.SMTPSecurity())
	if err != nil {
		logging.FatalLog("Invalid SMTP_SECURITY: %v", err)
	}
	cfg.Security = security
	if path := config.DKIMKeyFile(); path != "" {
		signer, err := mail.LoadSigner(path)
		if err != nil {
			logging.FatalLog("Failed to load DKIM key %s: %v", path, err)
		}
		cfg.DKIMSigner = signer
	}
	return cfg
}
