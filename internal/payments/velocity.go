package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docsathi/telehealth-api/pkg/logging"
)

// VelocityChecker limits how often a patient may open payment orders.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max orders per patient per window
	MaxOrdersPerPatient int
	OrderWindow         time.Duration

	EnableOrderCheck bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxOrdersPerPatient: 5,
		OrderWindow:         time.Hour,
		EnableOrderCheck:    true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CheckType    string
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.OrderWindow <= 0 {
		config.OrderWindow = time.Hour
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

func orderVelocityKey(patientID string) string {
	return fmt.Sprintf("velocity:order:%s", patientID)
}

// CheckOrderVelocity counts an order attempt for the patient.
func (v *VelocityChecker) CheckOrderVelocity(ctx context.Context, patientID string) (*VelocityResult, error) {
	ctx, span := paymentsTracer.Start(ctx, "velocity.check_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("telehealth.patient_id", patientID),
		attribute.String("velocity.check_type", "order"),
	)

	if v == nil || v.redis == nil || !v.config.EnableOrderCheck {
		return &VelocityResult{Allowed: true, CheckType: "order"}, nil
	}

	key := orderVelocityKey(patientID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.OrderWindow)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open - allow the order if Redis is down
		return &VelocityResult{Allowed: true, CheckType: "order", Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxOrdersPerPatient,
		CheckType:    "order",
		CurrentCount: count,
		MaxAllowed:   v.config.MaxOrdersPerPatient,
		WindowExpiry: expiry,
	}

	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d payment attempts in %s", v.config.MaxOrdersPerPatient, v.config.OrderWindow)
		v.logger.Warn("order velocity exceeded",
			"patient_id", patientID,
			"count", count,
			"max", v.config.MaxOrdersPerPatient,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}

	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}

	return int(count), time.Now().Add(ttl), nil
}

// ResetOrderVelocity clears a patient's counter.
func (v *VelocityChecker) ResetOrderVelocity(ctx context.Context, patientID string) error {
	return v.redis.Del(ctx, orderVelocityKey(patientID)).Err()
}

// GetOrderStats reports the patient's current counter without incrementing it.
func (v *VelocityChecker) GetOrderStats(ctx context.Context, patientID string) (*VelocityResult, error) {
	key := orderVelocityKey(patientID)

	count, err := v.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return &VelocityResult{
			Allowed:    true,
			CheckType:  "order",
			MaxAllowed: v.config.MaxOrdersPerPatient,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	ttl, _ := v.redis.TTL(ctx, key).Result()

	return &VelocityResult{
		Allowed:      count < v.config.MaxOrdersPerPatient,
		CheckType:    "order",
		CurrentCount: count,
		MaxAllowed:   v.config.MaxOrdersPerPatient,
		WindowExpiry: time.Now().Add(ttl),
	}, nil
}
