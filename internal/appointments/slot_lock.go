package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const slotHoldTTL = 30 * time.Second

// releaseScript deletes the hold only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SlotLock holds a short Redis reservation on (doctor, slot start) while a
// booking is written. The unique index remains the final guard.
type SlotLock struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSlotLock(client *redis.Client) *SlotLock {
	return &SlotLock{redis: client, ttl: slotHoldTTL}
}

func slotHoldKey(doctorID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("slot:hold:%s:%d", doctorID, start.Unix())
}

// Acquire returns a release func when the hold was taken, or ErrSlotTaken
// when another booking holds it. A nil SlotLock always succeeds.
func (l *SlotLock) Acquire(ctx context.Context, doctorID uuid.UUID, start time.Time) (func(), error) {
	if l == nil || l.redis == nil {
		return func() {}, nil
	}
	key := slotHoldKey(doctorID, start)
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("appointments: acquire slot hold: %w", err)
	}
	if !ok {
		return nil, ErrSlotTaken
	}
	return func() {
		// Release on a fresh context so a cancelled request still frees the hold.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.redis, []string{key}, token).Err()
	}, nil
}
