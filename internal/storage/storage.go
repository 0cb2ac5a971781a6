package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"interview-coach/internal/config"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// 关系数据库是必需的，其余组件未配置或连接失败时为 nil，对应功能降级。
type Storage struct {
	// 关系型数据库
	DB *Database

	// 键值存储，用于跨实例的会话锁
	Redis *Redis

	// 对象存储，用于归档简历
	MinIO *MinIO

	// 消息队列，用于发布面试事件
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	db, err := NewDatabase(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	s := &Storage{DB: db}

	if cfg.Redis.Address != "" {
		log.Printf("初始化Redis at %s...", cfg.Redis.Address)
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Printf("警告: 初始化Redis失败，仅使用进程内会话锁: %v", err)
		}
	}

	if cfg.MinIO.Endpoint != "" {
		var minioLogger *log.Logger
		if cfg.Logger.Level == "debug" || cfg.MinIO.EnableTestLogging {
			minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
		} else {
			minioLogger = log.New(io.Discard, "", 0)
		}
		s.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			log.Printf("警告: 初始化MinIO失败，简历不会归档: %v", err)
		}
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("警告: 初始化RabbitMQ失败，面试事件只写入 outbox: %v", err)
		} else if err := s.RabbitMQ.EnsureExchange(cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.ExchangeType, true); err != nil {
			log.Printf("警告: 声明事件交换机失败: %v", err)
		}
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Printf("关闭数据库连接失败: %v", err)
		}
	}
}
