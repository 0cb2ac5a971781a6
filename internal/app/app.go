// Package app 按配置组装服务的各个组件，HTTP 服务和命令行工具共用。
package app

import (
	"context"
	"fmt"
	"time"

	"interview-coach/internal/api/handler"
	"interview-coach/internal/api/router"
	"interview-coach/internal/completion"
	"interview-coach/internal/config"
	"interview-coach/internal/evaluation"
	"interview-coach/internal/extractor"
	"interview-coach/internal/interview"
	"interview-coach/internal/logger"
	"interview-coach/internal/metrics"
	"interview-coach/internal/outbox"
	"interview-coach/internal/storage"
	"interview-coach/internal/store"

	"github.com/cloudwego/hertz/pkg/app/server"
)

// App 组装好的组件
type App struct {
	Config     *config.Config
	Storage    *storage.Storage
	Metrics    *metrics.Metrics
	Store      store.Store
	Interview  *interview.Service
	Aggregator *evaluation.Aggregator
	Extractor  *extractor.Extractor
	// Relay 未配置 RabbitMQ 时为 nil，事件只留在 outbox 表中
	Relay *outbox.MessageRelay
}

// New 连接存储并创建全部组件
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mx := metrics.New()

	chat, err := completion.NewFromConfig(cfg, cfg.Completion.Model, mx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("创建面试模型客户端失败: %w", err)
	}
	eval, err := completion.NewFromConfig(cfg, cfg.Evaluation.Model, mx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("创建评估模型客户端失败: %w", err)
	}

	a, err := Assemble(ctx, cfg, st, chat, eval, mx)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// Assemble 用已有的存储和模型客户端组装组件，测试中可以注入替身
func Assemble(ctx context.Context, cfg *config.Config, st *storage.Storage, chat, eval completion.Client, mx *metrics.Metrics) (*App, error) {
	if st == nil || st.DB == nil {
		return nil, fmt.Errorf("数据库未初始化")
	}
	db := st.DB.DB()

	ex, err := extractor.New(ctx, cfg.Extractor, mx)
	if err != nil {
		return nil, fmt.Errorf("创建文档提取器失败: %w", err)
	}

	sessions := store.NewGormStore(db)
	events := outbox.NewGormRecorder(db, cfg.RabbitMQ.EventsExchange)

	locker := interview.NewSessionLocker(
		config.GetDuration(cfg.Interview.LockWait, 10*time.Second),
		config.GetDuration(cfg.Interview.LockTTL, 2*time.Minute),
		st.Redis,
	)

	a := &App{
		Config:  cfg,
		Storage: st,
		Metrics: mx,
		Store:   sessions,
		Interview: interview.NewService(sessions, chat, interview.ConfigFromApp(cfg),
			interview.WithLocker(locker),
			interview.WithEvents(events),
			interview.WithMetrics(mx),
		),
		Aggregator: evaluation.NewAggregator(sessions, eval, evaluation.ConfigFromApp(cfg),
			evaluation.WithEvents(events),
			evaluation.WithMetrics(mx),
		),
		Extractor: ex,
	}

	if st.RabbitMQ != nil {
		a.Relay = outbox.NewMessageRelay(db, st.RabbitMQ, outbox.RelayConfig{
			PollingInterval: config.GetDuration(cfg.RabbitMQ.PollingInterval, 5*time.Second),
			BatchSize:       cfg.RabbitMQ.BatchSize,
			MaxRetries:      cfg.RabbitMQ.MaxRetries,
			LockRows:        st.DB.Driver() == "mysql",
		}, mx)
	}
	return a, nil
}

// RegisterRoutes 把 HTTP 接口挂到 hertz 服务上
func (a *App) RegisterRoutes(h *server.Hertz) {
	var archive storage.ResumeArchive
	if a.Storage.MinIO != nil {
		archive = a.Storage.MinIO
	}
	ih := handler.NewInterviewHandler(a.Interview, a.Store, a.Extractor, archive,
		a.Config.Extractor.UploadDir, a.Config.Server.MaxUploadMB)
	rh := handler.NewReportHandler(a.Aggregator)

	router.RegisterRoutes(h, ih, rh, router.Options{
		APIKeys: a.Config.Server.APIKeys,
		Metrics: a.Metrics.Handler(),
	})
}

// Start 启动后台任务
func (a *App) Start(ctx context.Context) {
	if a.Relay != nil {
		a.Relay.Start(ctx)
		logger.Info().Msg("消息中继服务已启动")
	} else {
		logger.Warn().Msg("未配置RabbitMQ，面试事件只写入outbox表")
	}
}

// Close 停止后台任务并关闭连接
func (a *App) Close() {
	if a.Relay != nil {
		a.Relay.Stop()
	}
	a.Storage.Close()
}
