package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultKey = "settlement:pass:lock"

// releaseScript só apaga a chave se ela ainda pertence ao token de quem travou
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock é o lock de passada compartilhado entre réplicas do worker (SET NX PX)
type RedisLock struct {
	Client *redis.Client
	Key    string
	log    *zap.Logger
}

func NewRedisLock(c *redis.Client, key string, log *zap.Logger) *RedisLock {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLock{Client: c, Key: key, log: log}
}

// TryLock tenta adquirir o lock por ttl. ok=false quando outra instância o detém.
// O release usa contexto próprio: roda mesmo com o ctx da passada cancelado.
func (l *RedisLock) TryLock(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, l.Key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.Client, []string{l.Key}, token).Err(); err != nil {
			l.log.Warn("release settlement lock failed", zap.String("key", l.Key), zap.Error(err))
		}
	}
	return release, true, nil
}
