package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/twentyfive/authgate/internal/api"
	"github.com/twentyfive/authgate/internal/app"
	"github.com/twentyfive/authgate/internal/app/maintenance"
	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/auth/providers"
	"github.com/twentyfive/authgate/internal/cache"
	"github.com/twentyfive/authgate/internal/database"
	"github.com/twentyfive/authgate/internal/monitoring"
	"github.com/twentyfive/authgate/internal/monitoring/checks"
	"github.com/twentyfive/authgate/internal/ratelimit"
	"github.com/twentyfive/authgate/internal/services"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *cache.RedisStore
	Memory  *ratelimit.MemoryLimiter
	Limiter ratelimit.Limiter
	Jobs    *monitoring.JobTracker
	Health  *monitoring.HealthManager
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Secrets are checked before anything touches storage.
	phoneHasher, err := iauth.NewHasher("PHONE_NUMBER_SECRET", cfg.Auth.Phone.NumberSecret)
	if err != nil {
		return nil, fmt.Errorf("initialise phone hasher: %w", err)
	}
	otpHasher, err := iauth.NewHasher("OTP_SECRET", cfg.Auth.Phone.OTPSecret)
	if err != nil {
		return nil, fmt.Errorf("initialise otp hasher: %w", err)
	}

	tokens, err := iauth.NewSessionTokenService(cfg.Auth.SessionTokenConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session tokens: %w", err)
	}

	codec, err := iauth.NewStateCodecFromSecret(cfg.Auth.Session.Secret, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise oauth state codec: %w", err)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(cfg.Cache.RedisClientConfig()); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
	}

	var dbStore *cache.DatabaseStore
	stack.Limiter, dbStore, err = stack.buildLimiter(cfg)
	if err != nil {
		return nil, err
	}

	tokenStore, err := services.NewVerificationTokenService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise verification tokens: %w", err)
	}

	otp, err := services.NewPhoneOTPService(stack.DB, tokenStore, phoneHasher, otpHasher,
		services.WithOTPTTL(cfg.Auth.Phone.CodeTTL),
		services.WithOTPLimiter(stack.Limiter, cfg.Auth.Phone.RequestLimit, cfg.Auth.Phone.VerifyLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise phone otp service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	verification, err := services.NewEmailVerificationService(stack.DB, mailer,
		services.WithVerificationBaseURL(cfg.Server.BaseURL),
		services.WithVerificationExpiry(cfg.Auth.EmailVerification.TokenTTL),
		services.WithProductName(cfg.Auth.EmailVerification.ProductName),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise email verification: %w", err)
	}

	accounts, err := services.NewAccountService(stack.DB, verification)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}

	screener := iauth.NewScreener(cfg.Auth.Trust.ExtraDisposableDomains...)
	pipeline := iauth.NewPipeline(screener, accounts, iauth.WithBlockLikelyFake(cfg.Auth.Trust.BlockLikelyFake))

	var google providers.Provider
	if cfg.GoogleEnabled() {
		google, err = providers.NewGoogleProvider(ctx, cfg.Auth.GoogleProviderConfig(cfg.Server.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("initialise google provider: %w", err)
		}
	} else {
		log.Warn("google sign-in disabled; client credentials not configured")
	}

	stack.Jobs = monitoring.NewJobTracker()
	if cfg.Maintenance.Enabled {
		opts := []maintenance.Option{
			maintenance.WithTracker(stack.Jobs),
			maintenance.WithVerificationTokens(tokenStore),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		}
		if dbStore != nil {
			opts = append(opts, maintenance.WithCacheEntries(dbStore))
		}
		stack.Cleaner = maintenance.NewCleaner(opts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Health = stack.buildHealth(cfg)

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:       cfg,
		Tokens:       tokens,
		Pipeline:     pipeline,
		OTP:          otp,
		Verification: verification,
		Accounts:     accounts,
		StateCodec:   codec,
		Google:       google,
		Limiter:      stack.Limiter,
		Health:       stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildLimiter selects the rate limit backend. The database store is returned
// so its expired rows can be swept.
func (s *runtimeStack) buildLimiter(cfg *app.Config) (ratelimit.Limiter, *cache.DatabaseStore, error) {
	opts := []ratelimit.Option{
		ratelimit.WithWindow(cfg.RateLimit.Window),
		ratelimit.WithCleanupInterval(cfg.RateLimit.CleanupInterval),
	}

	switch strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend)) {
	case app.BackendRedis:
		if s.Redis == nil {
			return nil, nil, fmt.Errorf("ratelimit backend redis requires cache.redis.enabled")
		}
		limiter, err := ratelimit.NewStoreLimiter(s.Redis, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise redis limiter: %w", err)
		}
		return limiter, nil, nil
	case app.BackendDatabase:
		store := cache.NewDatabaseStore(s.DB)
		limiter, err := ratelimit.NewStoreLimiter(store, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise database limiter: %w", err)
		}
		return limiter, store, nil
	default:
		s.Memory = ratelimit.NewMemoryLimiter(opts...)
		s.Memory.Start()
		return s.Memory, nil, nil
	}
}

func (s *runtimeStack) buildHealth(cfg *app.Config) *monitoring.HealthManager {
	timeout := cfg.Monitoring.Health.Timeout
	manager := monitoring.NewHealthManager()

	manager.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(checks.Database(s.DB, timeout))

	if s.Redis != nil {
		manager.RegisterReadiness(checks.Cache(app.BackendRedis, s.Redis, timeout))
	} else {
		manager.RegisterReadiness(checks.Cache(strings.ToLower(cfg.RateLimit.Backend), nil, timeout))
	}

	if s.Cleaner != nil {
		manager.RegisterReadiness(checks.Maintenance(s.Jobs.Snapshot, 0))
	}
	return manager
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Memory != nil {
		s.Memory.Stop()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:       strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:         strings.TrimSpace(cfg.Database.Path),
		DSN:          strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
