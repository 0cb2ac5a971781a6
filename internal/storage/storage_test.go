package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"interview-coach/internal/config"
	"interview-coach/internal/constants"
	"interview-coach/internal/storage/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemoryMigratesTables(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	for _, m := range []interface{}{&models.ChatSession{}, &models.ChatMessage{}, &models.OutboxMessage{}} {
		assert.True(t, db.DB().Migrator().HasTable(m))
	}
}

func TestNewStorageWithSQLiteOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.MySQL.Driver = "sqlite"
	cfg.MySQL.SQLitePath = filepath.Join(t.TempDir(), "test.db")
	cfg.MySQL.LogLevel = 1

	s, err := NewStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.DB)
	assert.Nil(t, s.Redis)
	assert.Nil(t, s.MinIO)
	assert.Nil(t, s.RabbitMQ)
}

func TestNewDatabaseRejectsUnknownDriver(t *testing.T) {
	_, err := NewDatabase(&config.MySQLConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestRedisLockAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer r.Close()
	ctx := context.Background()

	key := r.FormatKey(constants.KeySessionLock, "s1")
	assert.Equal(t, "interview:session:lock:s1", key)

	token, err := r.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := r.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second, "锁已被占用")

	released, err := r.ReleaseLock(ctx, key, "someone-else")
	require.NoError(t, err)
	assert.False(t, released, "不能释放他人的锁")

	released, err = r.ReleaseLock(ctx, key, token)
	require.NoError(t, err)
	assert.True(t, released)

	token, err = r.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, err := r.AcquireLock(ctx, "interview:session:lock:s2", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	token, err := r.AcquireLock(ctx, "interview:session:lock:s2", time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestResumeObjectNames(t *testing.T) {
	assert.Equal(t, "resume/abc/original.pdf", ResumeFileObjectName("abc", ".PDF"))
	assert.Equal(t, "resume/abc/extracted.txt", ResumeTextObjectName("abc"))
	assert.Equal(t, "application/pdf", getContentType(".pdf"))
	assert.Equal(t, "application/octet-stream", getContentType(".txt"))
}
