package router

import (
	"context"
	"net/http"
	"time"

	"interview-coach/internal/api/handler"
	"interview-coach/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
)

// HeaderRequestID 请求ID响应头
const HeaderRequestID = "X-Request-ID"

// Options 路由的可选部分
type Options struct {
	// APIKeys 非空时 /api/v1 下除 /health 外的接口需要 Authorization: Bearer <key>
	APIKeys []string
	// Metrics 非空时挂载到 /metrics
	Metrics http.Handler
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, ih *handler.InterviewHandler, rh *handler.ReportHandler, opts Options) {
	h.Use(RequestID())

	if opts.Metrics != nil {
		h.GET("/metrics", adaptor.HertzHandler(opts.Metrics))
	}

	api := h.Group("/api/v1")

	// 健康检查不需要认证
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok", "time": time.Now().UTC()})
	})

	if len(opts.APIKeys) > 0 {
		api.Use(APIKeyAuth(opts.APIKeys))
	}

	api.POST("/interviews", ih.HandleStartWithUpload)
	api.POST("/interviews/text", ih.HandleStartWithText)
	api.POST("/interviews/:session_id/messages", ih.HandleContinue)

	api.POST("/sessions", ih.HandleCreateSession)
	api.GET("/sessions", ih.HandleListSessions)
	api.PUT("/sessions/:session_id", ih.HandleRenameSession)
	api.DELETE("/sessions/:session_id", ih.HandleDeleteSession)
	api.GET("/sessions/:session_id/messages", ih.HandleHistory)

	api.GET("/users/:user_id/report", rh.HandleReport)
}

// RequestID 为每个请求分配ID，写入响应头并附加到上下文 logger
func RequestID() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := string(ctx.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Response.Header.Set(HeaderRequestID, id)
		c = logger.WithFields(c, map[string]interface{}{"request_id": id})

		start := time.Now()
		ctx.Next(c)
		logger.Ctx(c).Debug().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("请求完成")
	}
}

// APIKeyAuth 校验 Bearer 形式的 API Key
func APIKeyAuth(keys []string) app.HandlerFunc {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			_, ok := allowed[key]
			return ok, nil
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "API Key 无效或缺失", "error_type": "unauthorized"})
		}),
	)
}
