package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 소유 토큰이 일치할 때만 삭제
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// ErrDisabled is returned when a Redis-only feature is requested without Redis
var ErrDisabled = errors.New("redis disabled")

// Locker is a cross-process mutual exclusion keyed by name (SET NX PX)
// ⭐ SSOT: 프로세스 간 작업 잠금은 여기서만
type Locker struct {
	client *Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewLocker creates a locker; Redis must be enabled
func NewLocker(client *Client, prefix string) (*Locker, error) {
	if !client.Enabled() {
		return nil, fmt.Errorf("job locker: %w", ErrDisabled)
	}
	return &Locker{
		client: client,
		prefix: prefix,
		tokens: make(map[string]string),
	}, nil
}

func (l *Locker) key(name string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, name)
}

// TryLock acquires name for ttl without waiting; false when another holder has it
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := uuid.New().String()

	ok, err := l.client.Redis().SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[name] = token
	l.mu.Unlock()
	return true, nil
}

// Unlock releases name if this process still owns it
func (l *Locker) Unlock(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	delete(l.tokens, name)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client.Redis(), []string{l.key(name)}, token).Err(); err != nil {
		return fmt.Errorf("unlock %s: %w", name, err)
	}
	return nil
}
