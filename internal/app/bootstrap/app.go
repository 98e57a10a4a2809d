package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/docsathi/telehealth-api/internal/api/router"
	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/auth"
	"github.com/docsathi/telehealth-api/internal/calls"
	appconfig "github.com/docsathi/telehealth-api/internal/config"
	"github.com/docsathi/telehealth-api/internal/events"
	httpmiddleware "github.com/docsathi/telehealth-api/internal/http/middleware"
	"github.com/docsathi/telehealth-api/internal/notify"
	"github.com/docsathi/telehealth-api/internal/observability/metrics"
	"github.com/docsathi/telehealth-api/internal/payments"
	"github.com/docsathi/telehealth-api/internal/profiles"
	"github.com/docsathi/telehealth-api/internal/realtime"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// Deps are the external clients the API server runs on. Only Pool is required.
type Deps struct {
	Pool           *pgxpool.Pool
	Redis          *redis.Client
	S3             *s3.Client
	SES            *sesv2.Client
	Metrics        *metrics.ClinicMetrics
	MetricsHandler http.Handler
}

// App is the assembled API server.
type App struct {
	Handler     http.Handler
	Deliverer   *events.Deliverer
	RateLimiter *httpmiddleware.RateLimiter
}

// Close releases background resources owned by the app.
func (a *App) Close() {
	if a.RateLimiter != nil {
		a.RateLimiter.Stop()
	}
}

// BuildApp wires repositories, services and handlers into a router.
func BuildApp(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("bootstrap: postgres pool is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	outbox := events.NewOutboxStore(deps.Pool)
	hub := realtime.NewHub(logger)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	users := auth.NewPostgresRepository(deps.Pool)
	authSvc := auth.NewService(users, tokens, logger)

	profileSvc := profiles.NewService(profiles.NewPostgresRepository(deps.Pool), users, logger).
		WithDefaultTimezone(cfg.DefaultTimezone)
	if deps.Redis != nil {
		profileSvc.WithCache(profiles.NewDoctorCache(deps.Redis))
	}
	if deps.S3 != nil && cfg.ProfileImageBucket != "" {
		profileSvc.WithImageStore(profiles.NewS3ImageStore(deps.S3, cfg.ProfileImageBucket, cfg.AWSRegion, cfg.AWSEndpointOverride))
	} else {
		logger.Warn("profile image uploads disabled", "bucket", cfg.ProfileImageBucket)
	}

	apptRepo := appointments.NewPostgresRepository(deps.Pool)
	apptSvc := appointments.NewService(apptRepo, profileSvc, logger).
		WithEvents(outbox).
		WithBroadcaster(hub).
		WithMetrics(deps.Metrics).
		WithPlatformFeePercent(cfg.PlatformFeePercent)
	if deps.Redis != nil {
		apptSvc.WithSlotLock(appointments.NewSlotLock(deps.Redis))
	}

	paySvc := payments.NewService(apptSvc, payments.Settings{
		SecretKey:     cfg.EsewaSecretKey,
		ProductCode:   cfg.EsewaProductCode,
		MerchantID:    cfg.EsewaMerchantID,
		BaseURL:       cfg.EsewaBaseURL,
		StatusURL:     cfg.EsewaStatusURL,
		PublicBaseURL: cfg.PublicBaseURL,
		FrontendURL:   cfg.FrontendURL,
	}, logger).
		WithDeduper(events.NewProcessedStore(deps.Pool)).
		WithMetrics(deps.Metrics)
	if deps.Redis != nil {
		paySvc.WithVelocity(payments.NewVelocityChecker(deps.Redis, payments.VelocityConfig{
			MaxOrdersPerPatient: cfg.OrderVelocityLimit,
			OrderWindow:         cfg.OrderVelocityWindow,
			EnableOrderCheck:    cfg.OrderVelocityLimit > 0,
		}, logger))
	}

	callSvc := calls.NewService(apptSvc, calls.NewTokenBuilder(cfg.ZegoAppID, cfg.ZegoServerSecret), cfg.ZegoTokenTTL, logger).
		WithMetrics(deps.Metrics)

	sender := notify.NewEmailSender(notify.SenderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.EmailFromAddress,
		FromName:       cfg.EmailFromName,
	}, deps.SES, logger)
	displayZone, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: default timezone: %w", err)
	}
	notifier := notify.NewService(sender, apptRepo, cfg.FrontendURL, logger).
		WithLocation(displayZone).
		WithDoctors(profileSvc).
		WithMetrics(deps.Metrics)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	checks := map[string]router.HealthCheck{
		"postgres": func(ctx context.Context) error { return deps.Pool.Ping(ctx) },
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Tokens:             tokens,
		AuthHandler:        auth.NewHandler(authSvc, logger),
		ProfilesHandler:    profiles.NewHandler(profileSvc, logger),
		AppointmentHandler: appointments.NewHandler(apptSvc, logger),
		PaymentsHandler:    payments.NewHandler(paySvc, logger),
		CallsHandler:       calls.NewHandler(callSvc, logger),
		RealtimeHandler:    realtime.NewHandler(hub, apptSvc, realtime.OriginChecker(cfg.CORSAllowedOrigins), logger),
		MetricsHandler:     deps.MetricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		HealthChecks:       checks,
	})

	return &App{
		Handler:     handler,
		Deliverer:   events.NewDeliverer(outbox, notifier, logger),
		RateLimiter: limiter,
	}, nil
}
