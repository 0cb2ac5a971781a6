package handler

import (
	"context"

	"interview-coach/internal/evaluation"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ReportHandler 处理表现报告请求
type ReportHandler struct {
	aggregator *evaluation.Aggregator
}

func NewReportHandler(agg *evaluation.Aggregator) *ReportHandler {
	return &ReportHandler{aggregator: agg}
}

// HandleReport 模型传输失败返回 503，输出不合规返回 502，两者都不返回部分结果
// GET /api/v1/users/:user_id/report
func (h *ReportHandler) HandleReport(ctx context.Context, c *app.RequestContext) {
	report, err := h.aggregator.ComputeReport(ctx, c.Param("user_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, report)
}
