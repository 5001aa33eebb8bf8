package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrIssueInProgress indica que otra emisión para el mismo email está en curso.
var ErrIssueInProgress = errors.New("otp issuance already in progress")

// IssueLocker serializa la emisión de OTP por email para que dos solicitudes
// simultáneas no pasen juntas los chequeos de rate limit.
type IssueLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type memoryIssueLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryIssueLocker() IssueLocker {
	return &memoryIssueLocker{held: make(map[string]struct{})}
}

func (l *memoryIssueLocker) Acquire(_ context.Context, key string) (func(), error) {
	key = strings.ToLower(strings.TrimSpace(key))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrIssueInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

const redisUnlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisIssueLocker struct {
	client redisLockClient
	ttl    time.Duration
	prefix string
}

// NewRedisIssueLocker usa SET NX PX; el ttl acota cuánto sobrevive un lock huérfano.
func NewRedisIssueLocker(client *redis.Client, ttl time.Duration) IssueLocker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &redisIssueLocker{
		client: client,
		ttl:    ttl,
		prefix: "otp:lock:",
	}
}

func (l *redisIssueLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + strings.ToLower(strings.TrimSpace(key))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIssueInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()
			_ = l.client.Eval(releaseCtx, redisUnlockScript, []string{redisKey}, token).Err()
		})
	}, nil
}
