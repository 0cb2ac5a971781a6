package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"interview-coach/internal/apperr"
	"interview-coach/internal/extractor"
	"interview-coach/internal/interview"
	"interview-coach/internal/logger"
	"interview-coach/internal/storage"
	"interview-coach/internal/store"
	"interview-coach/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
)

// DefaultMaxUploadMB 上传文件默认大小上限
const DefaultMaxUploadMB = 10

// InterviewHandler 处理面试和会话相关的请求
type InterviewHandler struct {
	service   *interview.Service
	store     store.Store
	extractor *extractor.Extractor
	archive   storage.ResumeArchive // 可为 nil
	uploadDir string
	maxUpload int64
}

// NewInterviewHandler archive 为 nil 时不归档简历
func NewInterviewHandler(svc *interview.Service, st store.Store, ex *extractor.Extractor,
	archive storage.ResumeArchive, uploadDir string, maxUploadMB int) *InterviewHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = DefaultMaxUploadMB
	}
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &InterviewHandler{
		service:   svc,
		store:     st,
		extractor: ex,
		archive:   archive,
		uploadDir: uploadDir,
		maxUpload: int64(maxUploadMB) << 20,
	}
}

// HandleStartWithUpload 上传简历文件开始面试
// POST /api/v1/interviews
func (h *InterviewHandler) HandleStartWithUpload(ctx context.Context, c *app.RequestContext) {
	const op = "handler.StartWithUpload"

	req := interview.StartRequest{
		UserID:         strings.TrimSpace(c.PostForm("user_id")),
		SessionID:      strings.TrimSpace(c.PostForm("session_id")),
		SessionName:    c.PostForm("session_name"),
		JobDescription: strings.TrimSpace(c.PostForm("job_description")),
	}
	// 必填字段在读取文件之前校验
	if req.JobDescription == "" {
		writeError(ctx, c, apperr.InvalidInput(op, "job_description 不能为空"))
		return
	}
	if req.UserID == "" && req.SessionID == "" {
		writeError(ctx, c, apperr.InvalidInput(op, "user_id 和 session_id 不能同时为空"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(ctx, c, apperr.InvalidInput(op, "缺少上传文件 file"))
		return
	}
	if fileHeader.Size > h.maxUpload {
		writeError(ctx, c, apperr.InvalidInput(op, fmt.Sprintf("文件大小 %d 超过上限 %d", fileHeader.Size, h.maxUpload)))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(ctx, c, fmt.Errorf("打开上传文件失败: %w", err))
		return
	}
	// 原件需要在提取前留一份，提取成功后磁盘文件会被删除
	fileBytes, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	file.Close()
	if err != nil {
		writeError(ctx, c, fmt.Errorf("读取上传文件失败: %w", err))
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	mimeHint := fileHeader.Header.Get("Content-Type")
	if _, err := extractor.DetectFormat(fileHeader.Filename, mimeHint); err != nil {
		writeError(ctx, c, err)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		writeError(ctx, c, fmt.Errorf("创建上传目录失败: %w", err))
		return
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, fileBytes, 0o600); err != nil {
		writeError(ctx, c, fmt.Errorf("保存上传文件失败: %w", err))
		return
	}

	resumeText, err := h.extractor.ExtractText(ctx, path, mimeHint)
	if err != nil {
		writeError(ctx, c, err)
		return
	}

	req.ResumeText = resumeText
	result, startErr := h.service.StartInterview(ctx, req)
	if result == nil {
		writeError(ctx, c, startErr)
		return
	}

	resp := turnResponse(result, startErr)
	resp.ResumeObject = h.archiveResume(ctx, result.SessionID, ext, fileBytes, resumeText)
	c.JSON(consts.StatusOK, resp)
}

// HandleStartWithText 以文本简历开始面试
// POST /api/v1/interviews/text
func (h *InterviewHandler) HandleStartWithText(ctx context.Context, c *app.RequestContext) {
	var req types.StartInterviewRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(ctx, c, apperr.InvalidInput("handler.StartWithText", "请求体不是合法的JSON: "+err.Error()))
		return
	}

	result, err := h.service.StartInterview(ctx, interview.StartRequest{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		SessionName:    req.SessionName,
		JobDescription: req.JobDescription,
		ResumeText:     req.ResumeText,
	})
	if result == nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, turnResponse(result, err))
}

// HandleContinue 提交候选人的回答
// POST /api/v1/interviews/:session_id/messages
func (h *InterviewHandler) HandleContinue(ctx context.Context, c *app.RequestContext) {
	var req types.ContinueInterviewRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(ctx, c, apperr.InvalidInput("handler.Continue", "请求体不是合法的JSON: "+err.Error()))
		return
	}

	result, err := h.service.ContinueInterview(ctx, interview.ContinueRequest{
		SessionID: c.Param("session_id"),
		Message:   req.Message,
	})
	if result == nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, turnResponse(result, err))
}

// HandleCreateSession POST /api/v1/sessions
func (h *InterviewHandler) HandleCreateSession(ctx context.Context, c *app.RequestContext) {
	var req types.CreateSessionRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(ctx, c, apperr.InvalidInput("handler.CreateSession", "请求体不是合法的JSON: "+err.Error()))
		return
	}
	sess, err := h.store.CreateSession(ctx, req.UserID, req.SessionName)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, sess)
}

// HandleListSessions GET /api/v1/sessions?user_id=
func (h *InterviewHandler) HandleListSessions(ctx context.Context, c *app.RequestContext) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		writeError(ctx, c, apperr.InvalidInput("handler.ListSessions", "user_id 不能为空"))
		return
	}
	sessions, err := h.store.ListSessions(ctx, userID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	c.JSON(consts.StatusOK, types.SessionListResponse{UserID: userID, Sessions: sessions})
}

// HandleRenameSession PUT /api/v1/sessions/:session_id
func (h *InterviewHandler) HandleRenameSession(ctx context.Context, c *app.RequestContext) {
	var req types.RenameSessionRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(ctx, c, apperr.InvalidInput("handler.RenameSession", "请求体不是合法的JSON: "+err.Error()))
		return
	}
	sess, err := h.store.RenameSession(ctx, c.Param("session_id"), req.SessionName)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, sess)
}

// HandleDeleteSession DELETE /api/v1/sessions/:session_id
func (h *InterviewHandler) HandleDeleteSession(ctx context.Context, c *app.RequestContext) {
	sessionID := c.Param("session_id")
	if err := h.store.DeleteSession(ctx, sessionID); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"session_id": sessionID, "status": "deleted"})
}

// HandleHistory GET /api/v1/sessions/:session_id/messages
func (h *InterviewHandler) HandleHistory(ctx context.Context, c *app.RequestContext) {
	sessionID := c.Param("session_id")
	if _, err := h.store.GetSession(ctx, sessionID); err != nil {
		writeError(ctx, c, err)
		return
	}
	msgs, err := h.store.ListMessages(ctx, sessionID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(consts.StatusOK, types.HistoryResponse{SessionID: sessionID, Messages: msgs})
}

// archiveResume 归档失败不影响面试，只记录日志
func (h *InterviewHandler) archiveResume(ctx context.Context, sessionID, ext string, original []byte, text string) string {
	if h.archive == nil {
		return ""
	}
	log := logger.Ctx(ctx).With().Str("session_id", sessionID).Logger()

	objectName, err := h.archive.ArchiveResumeFile(ctx, sessionID, ext, bytes.NewReader(original), int64(len(original)))
	if err != nil {
		log.Warn().Err(err).Msg("归档简历原件失败")
		return ""
	}
	if _, err := h.archive.ArchiveResumeText(ctx, sessionID, text); err != nil {
		log.Warn().Err(err).Msg("归档简历文本失败")
	}
	return objectName
}

func turnResponse(result *interview.TurnResult, err error) types.TurnResponse {
	resp := types.TurnResponse{
		SessionID:  result.SessionID,
		Reply:      result.Reply,
		Degraded:   result.Degraded,
		Turn:       result.Turn,
		Concluding: result.Concluding,
	}
	if err != nil {
		// 详细原因只写日志，调用方只看到通用说明
		resp.Error = DegradedTurnMessage
	}
	return resp
}
