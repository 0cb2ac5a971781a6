package interview

import (
	"context"
	"sync"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/constants"
	"interview-coach/internal/logger"
	"interview-coach/internal/storage"
)

const (
	defaultLockWait = 10 * time.Second
	defaultLockTTL  = 2 * time.Minute
	lockPollDelay   = 50 * time.Millisecond
)

// Locker 按会话串行化面试轮次
type Locker interface {
	// Lock 在等待上限内获取会话锁，超时返回 ErrSessionBusy。返回的函数释放锁，可重复调用。
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// SessionLocker 进程内按会话加锁；配置了 Redis 时同时持有分布式锁，防止多个实例交错处理同一会话
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	wait  time.Duration
	ttl   time.Duration
	redis *storage.Redis
}

var _ Locker = (*SessionLocker)(nil)

// NewSessionLocker redis 可以为 nil
func NewSessionLocker(wait, ttl time.Duration, redis *storage.Redis) *SessionLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &SessionLocker{
		locks: make(map[string]*lockEntry),
		wait:  wait,
		ttl:   ttl,
		redis: redis,
	}
}

func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	const op = "interview.Lock"

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	entry := l.acquireEntry(sessionID)
	select {
	case entry.ch <- struct{}{}:
	case <-waitCtx.Done():
		l.releaseEntry(sessionID, entry, false)
		return nil, apperr.SessionBusy(op, sessionID, waitCtx.Err())
	}

	if l.redis == nil {
		return sync.OnceFunc(func() { l.releaseEntry(sessionID, entry, true) }), nil
	}

	key := l.redis.FormatKey(constants.KeySessionLock, sessionID)
	token, err := l.acquireDistributed(waitCtx, key)
	if err != nil {
		l.releaseEntry(sessionID, entry, true)
		return nil, apperr.SessionBusy(op, sessionID, err)
	}

	return sync.OnceFunc(func() {
		if token != "" {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			if ok, err := l.redis.ReleaseLock(releaseCtx, key, token); err != nil || !ok {
				logger.Warn().Err(err).Str("session_id", sessionID).Msg("释放会话分布式锁失败，将等待其过期")
			}
			cancel()
		}
		l.releaseEntry(sessionID, entry, true)
	}), nil
}

// acquireDistributed 轮询获取 Redis 锁。Redis 不可用时降级为只用进程内锁，返回空 token。
func (l *SessionLocker) acquireDistributed(ctx context.Context, key string) (string, error) {
	for {
		token, err := l.redis.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn().Err(err).Str("key", key).Msg("Redis 会话锁不可用，仅使用进程内锁")
			return "", nil
		}
		if token != "" {
			return token, nil
		}

		timer := time.NewTimer(lockPollDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *SessionLocker) acquireEntry(sessionID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[sessionID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = e
	}
	e.refs++
	return e
}

func (l *SessionLocker) releaseEntry(sessionID string, e *lockEntry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, sessionID)
	}
}
