package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"interview-coach/internal/api/handler"
	"interview-coach/internal/apperr"
	"interview-coach/internal/api/router"
	"interview-coach/internal/completion"
	"interview-coach/internal/evaluation"
	"interview-coach/internal/extractor"
	"interview-coach/internal/interview"
	"interview-coach/internal/metrics"
	"interview-coach/internal/storage"
	"interview-coach/internal/store"
	"interview-coach/internal/types"
	"interview-coach/pkg/llm"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	text  string
	calls atomic.Int32
}

func (p *stubParser) Parse(_ context.Context, r io.Reader, _ string) (string, error) {
	p.calls.Add(1)
	_, _ = io.Copy(io.Discard, r)
	return p.text, nil
}

type recordingArchive struct {
	mu    sync.Mutex
	files map[string][]byte
	texts map[string]string
}

func (a *recordingArchive) ArchiveResumeFile(_ context.Context, sessionID, ext string, r io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	name := storage.ResumeFileObjectName(sessionID, ext)
	a.files[name] = data
	return name, nil
}

func (a *recordingArchive) ArchiveResumeText(_ context.Context, sessionID, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts[sessionID] = text
	return storage.ResumeTextObjectName(sessionID), nil
}

type testServer struct {
	h         *server.Hertz
	mock      *llm.MockChatClient
	parser    *stubParser
	archive   *recordingArchive
	uploadDir string
}

func newTestServer(t *testing.T, apiKeys ...string) *testServer {
	t.Helper()
	return newTestServerWithStore(t, nil, apiKeys...)
}

// newTestServerWithStore 允许用 wrap 替换会话存储，用于注入存储故障
func newTestServerWithStore(t *testing.T, wrap func(store.Store) store.Store, apiKeys ...string) *testServer {
	t.Helper()
	database, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	mx := metrics.New()
	mock := llm.NewMockChatClient("Welcome! Please introduce yourself.", nil)
	client := completion.NewChatClient(mock, "test-model", 5*time.Second, mx)
	var st store.Store = store.NewGormStore(database.DB())
	if wrap != nil {
		st = wrap(st)
	}

	svc := interview.NewService(st, client, interview.Config{}, interview.WithMetrics(mx))
	agg := evaluation.NewAggregator(st, client, evaluation.Config{}, evaluation.WithMetrics(mx))
	parser := &stubParser{text: "Jane Doe\nGo engineer"}
	ex := extractor.NewWithParsers(map[extractor.Format]extractor.DocumentParser{
		extractor.FormatPDF: parser,
	}, "", mx)

	archive := &recordingArchive{files: map[string][]byte{}, texts: map[string]string{}}
	uploadDir := t.TempDir()

	h := server.New()
	router.RegisterRoutes(h,
		handler.NewInterviewHandler(svc, st, ex, archive, uploadDir, 1),
		handler.NewReportHandler(agg),
		router.Options{APIKeys: apiKeys, Metrics: mx.Handler()},
	)
	return &testServer{h: h, mock: mock, parser: parser, archive: archive, uploadDir: uploadDir}
}

func (s *testServer) do(method, path string, body any, headers ...ut.Header) *protocol.Response {
	var b *ut.Body
	if body != nil {
		data, _ := json.Marshal(body)
		b = &ut.Body{Body: bytes.NewReader(data), Len: len(data)}
		headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	}
	return ut.PerformRequest(s.h.Engine, method, path, b, headers...).Result()
}

func decode[T any](t *testing.T, resp *protocol.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body(), &v), string(resp.Body()))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, "secret")

	resp := s.do("GET", "/api/v1/health", nil)
	assert.Equal(t, 200, resp.StatusCode())
	assert.NotEmpty(t, resp.Header.Get(router.HeaderRequestID))

	resp = s.do("GET", "/metrics", nil)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "go_goroutines")
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, "secret")

	resp := s.do("GET", "/api/v1/sessions?user_id=u1", nil)
	assert.Equal(t, 401, resp.StatusCode())

	resp = s.do("GET", "/api/v1/sessions?user_id=u1", nil, ut.Header{Key: "Authorization", Value: "Bearer wrong"})
	assert.Equal(t, 401, resp.StatusCode())

	resp = s.do("GET", "/api/v1/sessions?user_id=u1", nil, ut.Header{Key: "Authorization", Value: "Bearer secret"})
	assert.Equal(t, 200, resp.StatusCode())
}

func TestInterviewFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	resp := s.do("POST", "/api/v1/interviews/text", types.StartInterviewRequest{
		UserID:         "u1",
		SessionName:    "Backend",
		JobDescription: "Backend engineer, 3 yrs Go",
		ResumeText:     "Built 3 microservices",
	})
	require.Equal(t, 200, resp.StatusCode(), string(resp.Body()))
	start := decode[types.TurnResponse](t, resp)
	assert.Equal(t, "Welcome! Please introduce yourself.", start.Reply)
	assert.False(t, start.Degraded)
	require.NotEmpty(t, start.SessionID)

	s.mock.ExpectedResponse = "Tell me about a hard bug."
	resp = s.do("POST", "/api/v1/interviews/"+start.SessionID+"/messages", types.ContinueInterviewRequest{Message: "I'm Jane."})
	require.Equal(t, 200, resp.StatusCode(), string(resp.Body()))
	turn := decode[types.TurnResponse](t, resp)
	assert.Equal(t, 1, turn.Turn)
	assert.Equal(t, "Tell me about a hard bug.", turn.Reply)

	resp = s.do("GET", "/api/v1/sessions/"+start.SessionID+"/messages", nil)
	require.Equal(t, 200, resp.StatusCode())
	history := decode[types.HistoryResponse](t, resp)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, store.KindFraming, history.Messages[0].Kind)
	assert.Equal(t, "I'm Jane.", history.Messages[2].Content)

	resp = s.do("PUT", "/api/v1/sessions/"+start.SessionID, types.RenameSessionRequest{SessionName: "Renamed"})
	require.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "Renamed", decode[store.Session](t, resp).Name)

	resp = s.do("GET", "/api/v1/sessions?user_id=u1", nil)
	list := decode[types.SessionListResponse](t, resp)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "Renamed", list.Sessions[0].Name)

	resp = s.do("DELETE", "/api/v1/sessions/"+start.SessionID, nil)
	require.Equal(t, 200, resp.StatusCode())

	resp = s.do("GET", "/api/v1/sessions/"+start.SessionID+"/messages", nil)
	assert.Equal(t, 404, resp.StatusCode())
	assert.Equal(t, handler.ErrorTypeNotFound, decode[types.ErrorResponse](t, resp).ErrorType)
}

func TestStartValidationAndConflicts(t *testing.T) {
	s := newTestServer(t)

	resp := s.do("POST", "/api/v1/interviews/text", types.StartInterviewRequest{UserID: "u1", ResumeText: "x"})
	assert.Equal(t, 400, resp.StatusCode())
	assert.Equal(t, handler.ErrorTypeInvalidInput, decode[types.ErrorResponse](t, resp).ErrorType)
	assert.Zero(t, s.mock.CallCount())

	resp = s.do("POST", "/api/v1/interviews/missing/messages", types.ContinueInterviewRequest{Message: "hi"})
	assert.Equal(t, 404, resp.StatusCode())

	resp = s.do("POST", "/api/v1/sessions", types.CreateSessionRequest{UserID: "u1", SessionName: "Empty"})
	require.Equal(t, 201, resp.StatusCode())
	sess := decode[store.Session](t, resp)

	req := types.StartInterviewRequest{SessionID: sess.ID, JobDescription: "JD", ResumeText: "CV"}
	resp = s.do("POST", "/api/v1/interviews/text", req)
	require.Equal(t, 200, resp.StatusCode())
	resp = s.do("POST", "/api/v1/interviews/text", req)
	assert.Equal(t, 409, resp.StatusCode())
	assert.Equal(t, handler.ErrorTypeConflict, decode[types.ErrorResponse](t, resp).ErrorType)
}

func TestDegradedTurnReturns200(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectedError = &llm.StatusError{StatusCode: 500, Message: "boom"}

	resp := s.do("POST", "/api/v1/interviews/text", types.StartInterviewRequest{
		UserID: "u1", JobDescription: "JD", ResumeText: "CV",
	})
	require.Equal(t, 200, resp.StatusCode())
	out := decode[types.TurnResponse](t, resp)
	assert.True(t, out.Degraded)
	assert.Equal(t, interview.DefaultFallbackMessage, out.Reply)
	assert.Equal(t, handler.DegradedTurnMessage, out.Error)
	assert.NotContains(t, string(resp.Body()), "boom")
}

type brokenAppendStore struct {
	store.Store
}

func (brokenAppendStore) AppendMessage(context.Context, string, store.Role, store.Kind, string) (*store.Message, error) {
	return nil, apperr.Store("store.AppendMessage", errors.New("disk I/O error"))
}

func TestStoreFailureReturns500(t *testing.T) {
	s := newTestServerWithStore(t, func(st store.Store) store.Store { return brokenAppendStore{Store: st} })

	resp := s.do("POST", "/api/v1/interviews/text", types.StartInterviewRequest{
		UserID: "u1", JobDescription: "JD", ResumeText: "CV",
	})
	require.Equal(t, 500, resp.StatusCode(), string(resp.Body()))
	assert.Equal(t, handler.ErrorTypeStore, decode[types.ErrorResponse](t, resp).ErrorType)
	assert.Zero(t, s.mock.CallCount(), "框架消息未保存时不调用模型")
}

func multipartBody(t *testing.T, filename, contentType string, content []byte, fields map[string]string) (*ut.Body, ut.Header) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()}, ut.Header{Key: "Content-Type", Value: w.FormDataContentType()}
}

func TestStartWithUpload(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, "cv.pdf", "application/pdf", []byte("%PDF-1.4 fake"), map[string]string{
		"user_id":         "u1",
		"job_description": "Backend engineer",
	})
	resp := ut.PerformRequest(s.h.Engine, "POST", "/api/v1/interviews", body, ct).Result()
	require.Equal(t, 200, resp.StatusCode(), string(resp.Body()))
	out := decode[types.TurnResponse](t, resp)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, storage.ResumeFileObjectName(out.SessionID, ".pdf"), out.ResumeObject)

	call := s.mock.LastCall()
	require.Len(t, call.Messages, 2)
	assert.Contains(t, call.Messages[1].Content, "Candidate's Resume: Jane Doe\nGo engineer")

	assert.Equal(t, []byte("%PDF-1.4 fake"), s.archive.files[out.ResumeObject])
	assert.Equal(t, "Jane Doe\nGo engineer", s.archive.texts[out.SessionID])

	assert.EqualValues(t, 1, s.parser.calls.Load())
	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "提取成功后删除上传文件")
}

func TestStartWithUnsupportedUpload(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, "cv.txt", "text/plain", []byte("plain"), map[string]string{
		"user_id":         "u1",
		"job_description": "Backend engineer",
	})
	resp := ut.PerformRequest(s.h.Engine, "POST", "/api/v1/interviews", body, ct).Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Equal(t, handler.ErrorTypeUnsupportedFormat, decode[types.ErrorResponse](t, resp).ErrorType)
	assert.Zero(t, s.mock.CallCount())

	matches, _ := filepath.Glob(filepath.Join(s.uploadDir, "*"))
	assert.Empty(t, matches)
}

func TestStartWithUploadRejectsMissingFieldsBeforeParsing(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "缺少岗位描述", fields: map[string]string{"user_id": "u1", "job_description": "  "}},
		{name: "缺少用户和会话", fields: map[string]string{"job_description": "Backend engineer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			body, ct := multipartBody(t, "cv.pdf", "application/pdf", []byte("%PDF-1.4 fake"), tt.fields)
			resp := ut.PerformRequest(s.h.Engine, "POST", "/api/v1/interviews", body, ct).Result()
			assert.Equal(t, 400, resp.StatusCode())
			assert.Equal(t, handler.ErrorTypeInvalidInput, decode[types.ErrorResponse](t, resp).ErrorType)
			assert.Zero(t, s.parser.calls.Load(), "字段缺失时不解析文档")
			assert.Zero(t, s.mock.CallCount())

			matches, _ := filepath.Glob(filepath.Join(s.uploadDir, "*"))
			assert.Empty(t, matches)
		})
	}
}

func TestReportEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp := s.do("GET", "/api/v1/users/u1/report", nil)
	require.Equal(t, 200, resp.StatusCode())
	empty := decode[evaluation.EvaluationReport](t, resp)
	assert.Empty(t, empty.Sessions)
	assert.Zero(t, s.mock.CallCount())

	resp = s.do("POST", "/api/v1/interviews/text", types.StartInterviewRequest{UserID: "u1", JobDescription: "JD", ResumeText: "CV"})
	require.Equal(t, 200, resp.StatusCode())

	s.mock.ExpectedResponse = "The candidate was great."
	resp = s.do("GET", "/api/v1/users/u1/report", nil)
	assert.Equal(t, 502, resp.StatusCode())
	errResp := decode[types.ErrorResponse](t, resp)
	assert.Equal(t, handler.ErrorTypeSchemaValidation, errResp.ErrorType)
	assert.Equal(t, "The candidate was great.", errResp.Raw)

	s.mock.ExpectedError = &llm.StatusError{StatusCode: 503, Message: "unavailable"}
	resp = s.do("GET", "/api/v1/users/u1/report", nil)
	assert.Equal(t, 503, resp.StatusCode())
	assert.Equal(t, handler.ErrorTypeTransport, decode[types.ErrorResponse](t, resp).ErrorType)
}
