// Package main is the entry point for the authgate gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"

	"github.com/campuskit/authgate/internal/identity"
	"github.com/campuskit/authgate/internal/provider"
	"github.com/campuskit/authgate/internal/server"
	"github.com/campuskit/authgate/internal/shared/cache"
	"github.com/campuskit/authgate/internal/shared/events"
	"github.com/campuskit/authgate/internal/shared/health"
	"github.com/campuskit/authgate/internal/shared/logger"
	"github.com/campuskit/authgate/internal/shared/metrics"
	"github.com/campuskit/authgate/internal/shared/tracing"
	"github.com/campuskit/authgate/internal/token"
)

// Config holds the gateway configuration.
type Config struct {
	HTTP struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"http"`

	// PublicURL is the externally visible base URL used to build provider
	// redirect URLs.
	PublicURL string `mapstructure:"public_url"`

	// Protected lists path prefixes gated behind a valid session.
	Protected []string `mapstructure:"protected"`

	// SecureCookies marks the refresh cookie Secure; enable behind HTTPS.
	SecureCookies bool `mapstructure:"secure_cookies"`

	Tokens token.Config `mapstructure:"tokens"`

	Database struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		User            string        `mapstructure:"user"`
		Password        string        `mapstructure:"password"`
		Name            string        `mapstructure:"name"`
		SSLMode         string        `mapstructure:"ssl_mode"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`

	OAuth struct {
		Google struct {
			ClientID     string `mapstructure:"client_id"`
			ClientSecret string `mapstructure:"client_secret"`
		} `mapstructure:"google"`
		GitHub struct {
			ClientID     string `mapstructure:"client_id"`
			ClientSecret string `mapstructure:"client_secret"`
		} `mapstructure:"github"`
		Keycloak struct {
			RealmURL     string `mapstructure:"realm_url"`
			ClientID     string `mapstructure:"client_id"`
			ClientSecret string `mapstructure:"client_secret"`
		} `mapstructure:"keycloak"`
	} `mapstructure:"oauth"`

	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Redis cache.Config  `mapstructure:"redis"`
	NATS  events.Config `mapstructure:"nats"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Tracing tracing.Config `mapstructure:"tracing"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "authgate",
		Environment: os.Getenv("ENVIRONMENT"),
	})

	log := logger.Default()
	log.Info("starting authgate",
		"public_url", cfg.PublicURL,
		"protected", cfg.Protected,
	)

	var tracingCleanup func(context.Context) error
	if cfg.Tracing.Enabled {
		cfg.Tracing.ServiceName = "authgate"
		cfg.Tracing.ServiceVersion = version()
		cfg.Tracing.Environment = os.Getenv("ENVIRONMENT")
		tracingCleanup, err = tracing.Init(cfg.Tracing)
		if err != nil {
			log.Error("failed to initialize tracing", "error", err)
		} else {
			log.Info("tracing initialized", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	m := metrics.New(metrics.Config{Namespace: "authgate", Subsystem: "gateway"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, err := token.NewService(cfg.Tokens)
	if err != nil {
		log.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}

	// Database is optional: without it identities live in process memory
	// and user ids reset on restart.
	var dbPool *pgxpool.Pool
	if cfg.Database.Host != "" {
		dbPool, err = initDatabase(ctx, cfg)
		if err != nil {
			log.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
	}

	var cacheClient *cache.Client
	if cfg.Redis.Address != "" {
		cacheClient, err = cache.New(cfg.Redis)
		if err != nil {
			log.Warn("failed to connect to Redis, continuing without cache", "error", err)
			cacheClient = nil
		} else {
			log.Info("connected to Redis", "address", cfg.Redis.Address)
		}
	}

	var eventsClient *events.Client
	if cfg.NATS.URL != "" {
		eventsClient, err = events.New(cfg.NATS)
		if err != nil {
			log.Warn("failed to connect to NATS, continuing without events", "error", err)
			eventsClient = nil
		} else {
			log.Info("connected to NATS", "url", cfg.NATS.URL)
		}
	}

	resolver, err := buildResolver(ctx, dbPool, cacheClient, m, log)
	if err != nil {
		log.Error("failed to initialize identity resolver", "error", err)
		os.Exit(1)
	}

	registry := buildProviders(cfg)
	log.Info("providers configured", "providers", registry.Names())

	srv := server.New(server.Config{
		Providers: registry,
		Tokens:    tokens,
		Resolver:  resolver,
		Cookies:   server.NewCookieManager(cfg.SecureCookies),
		Events:    eventsClient,
		Metrics:   m,
		Logger:    log,
	})

	guard := server.NewGuard(tokens, cfg.Protected, registry.Default().Name(), m)
	limiter := server.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, m)
	defer limiter.Stop()

	mux := http.NewServeMux()
	mux.Handle("/auth/", limiter.Middleware(srv.Routes()))
	mux.Handle("/", guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	httpAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           server.Logging(log, m)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting HTTP server", "address", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	healthChecker := health.NewChecker(
		health.WithVersion(version()),
		health.WithTimeout(5*time.Second),
	)
	if dbPool != nil {
		healthChecker.Register("database", health.PingCheck(dbPool.Ping))
	}
	if cacheClient != nil {
		healthChecker.Register("redis", health.PingCheck(cacheClient.Ping))
	}
	if eventsClient != nil {
		healthChecker.Register("nats", health.PingCheck(func(ctx context.Context) error {
			if !eventsClient.IsConnected() {
				return fmt.Errorf("not connected to NATS")
			}
			return nil
		}))
	}

	go func() {
		healthAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port+1000)
		healthMux := http.NewServeMux()
		healthMux.HandleFunc("/health", healthChecker.HealthHandler)
		healthMux.HandleFunc("/health/live", healthChecker.LiveHandler)
		healthMux.HandleFunc("/health/ready", healthChecker.ReadyHandler)
		healthMux.Handle("/metrics", m.Handler())

		healthServer := &http.Server{
			Addr:              healthAddr,
			Handler:           healthMux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		log.Info("starting health/metrics server", "address", healthAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	if cacheClient != nil {
		if err := cacheClient.Close(); err != nil {
			log.Error("Redis client close error", "error", err)
		}
	}
	if eventsClient != nil {
		if err := eventsClient.Close(); err != nil {
			log.Error("NATS client close error", "error", err)
		}
	}
	if tracingCleanup != nil {
		if err := tracingCleanup(shutdownCtx); err != nil {
			log.Error("tracing shutdown error", "error", err)
		}
	}

	log.Info("stopped")
}

// buildResolver picks the identity resolver: Postgres when a database is
// configured, wrapped in a Redis cache when one is available, otherwise an
// in-memory resolver.
func buildResolver(ctx context.Context, dbPool *pgxpool.Pool, cacheClient *cache.Client, m *metrics.Metrics, log *logger.Logger) (identity.Resolver, error) {
	if dbPool == nil {
		log.Warn("no database configured, using in-memory identity resolver")
		return identity.NewMemory(), nil
	}

	pg := identity.NewPostgres(dbPool, identity.WithCreateHook(m.RecordUserCreated))
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	if cacheClient != nil {
		return identity.NewCached(pg, cacheClient, 24*time.Hour), nil
	}
	return pg, nil
}

// buildProviders registers every provider with credentials configured. The
// blank provider backs the registry so a bare deployment can still sign in.
func buildProviders(cfg *Config) *provider.Registry {
	callbackURL := func(name string) string {
		return strings.TrimRight(cfg.PublicURL, "/") + "/auth/callback/" + name
	}

	registry := provider.NewRegistry(provider.NewBlank(callbackURL("blank")))

	if cfg.OAuth.GitHub.ClientID != "" {
		registry.Register(provider.NewGitHub(provider.GitHubConfig{
			ClientID:     cfg.OAuth.GitHub.ClientID,
			ClientSecret: cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  callbackURL("github"),
		}))
	}
	if cfg.OAuth.Google.ClientID != "" {
		registry.Register(provider.NewGoogle(provider.GoogleConfig{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  callbackURL("google"),
		}))
	}
	if cfg.OAuth.Keycloak.ClientID != "" {
		registry.Register(provider.NewKeycloak(provider.KeycloakConfig{
			RealmURL:     cfg.OAuth.Keycloak.RealmURL,
			ClientID:     cfg.OAuth.Keycloak.ClientID,
			ClientSecret: cfg.OAuth.Keycloak.ClientSecret,
			RedirectURL:  callbackURL("keycloak"),
		}))
	}

	return registry
}

func initDatabase(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

func loadConfig() (*Config, error) {
	viper.SetConfigName("authgate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/authgate")

	viper.SetDefault("http.host", "0.0.0.0")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("public_url", "http://localhost:8080")
	viper.SetDefault("protected", []string{"/library"})
	viper.SetDefault("secure_cookies", false)
	viper.SetDefault("tokens.session_ttl", "2m")
	viper.SetDefault("tokens.refresh_ttl", "720h") // 30 days
	viper.SetDefault("tokens.issuer", "authgate")
	viper.SetDefault("database.host", "")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "authgate")
	viper.SetDefault("database.name", "authgate")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("rate_limit.requests_per_second", 10)
	viper.SetDefault("rate_limit.burst", 20)
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.key_prefix", "authgate:")
	viper.SetDefault("nats.url", "")
	viper.SetDefault("nats.name", "authgate")
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", "2s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	viper.SetEnvPrefix("AUTHGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Tokens.SessionSecret == "" || cfg.Tokens.RefreshSecret == "" {
		return nil, fmt.Errorf("tokens.session_secret and tokens.refresh_secret are required")
	}

	return &cfg, nil
}

func version() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
