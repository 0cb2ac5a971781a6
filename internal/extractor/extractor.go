// Package extractor 把上传的简历文件转换为纯文本
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/config"
	"interview-coach/internal/logger"
	"interview-coach/internal/metrics"
	"interview-coach/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("interview-coach/extractor")

// Format 支持的文档格式
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DefaultPlaceholder 提取结果为空时返回的文本
const DefaultPlaceholder = "Empty document or unsupported format."

// DocumentParser 从 reader 中读取某一种格式的全文
type DocumentParser interface {
	Parse(ctx context.Context, r io.Reader, uri string) (string, error)
}

// Extractor 按格式分派到对应的解析器，本身不保存状态
type Extractor struct {
	parsers     map[Format]DocumentParser
	placeholder string
	metrics     *metrics.Metrics
}

// New 使用 eino PDF 解析器和 DOCX 解析器创建提取器
func New(ctx context.Context, cfg config.ExtractorConfig, mx *metrics.Metrics) (*Extractor, error) {
	pdfParser, err := NewPDFParser(ctx, config.GetDuration(cfg.PDFTimeout, 30*time.Second))
	if err != nil {
		return nil, err
	}
	return NewWithParsers(map[Format]DocumentParser{
		FormatPDF:  pdfParser,
		FormatDOCX: DOCXParser{},
	}, cfg.EmptyPlaceholder, mx), nil
}

// NewWithParsers placeholder 为空时使用 DefaultPlaceholder
func NewWithParsers(parsers map[Format]DocumentParser, placeholder string, mx *metrics.Metrics) *Extractor {
	if strings.TrimSpace(placeholder) == "" {
		placeholder = DefaultPlaceholder
	}
	return &Extractor{parsers: parsers, placeholder: placeholder, metrics: mx}
}

// DetectFormat 优先使用 MIME 类型，无法识别时退回到扩展名
func DetectFormat(filePath, mimeHint string) (Format, error) {
	if mimeHint != "" {
		if mt, _, err := mime.ParseMediaType(mimeHint); err == nil {
			switch mt {
			case MimePDF:
				return FormatPDF, nil
			case MimeDOCX:
				return FormatDOCX, nil
			}
		}
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	}
	return "", apperr.UnsupportedFormat("extractor.DetectFormat",
		fmt.Sprintf("file=%s, mime=%q", filepath.Base(filePath), mimeHint))
}

// ExtractText 提取文件全文。成功后删除文件；格式不支持或解析失败时保留文件。
// 提取结果为空时返回占位文本。
func (e *Extractor) ExtractText(ctx context.Context, filePath, mimeHint string) (string, error) {
	const op = "extractor.ExtractText"

	ctx, span := tracer.Start(ctx, "Extractor.ExtractText")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", filepath.Base(filePath)))

	format, err := DetectFormat(filePath, mimeHint)
	if err != nil {
		e.metrics.ObserveExtraction("unknown", metrics.OutcomeError)
		tracing.RecordAppError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("file.format", string(format)))

	p, ok := e.parsers[format]
	if !ok {
		err := apperr.UnsupportedFormat(op, "未配置解析器: "+string(format))
		tracing.RecordAppError(span, err)
		return "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = apperr.FileNotFound(op, filePath)
		} else {
			err = apperr.Extraction(op, "打开文件失败", err)
		}
		e.metrics.ObserveExtraction(string(format), metrics.OutcomeError)
		tracing.RecordAppError(span, err)
		return "", err
	}

	start := time.Now()
	text, parseErr := p.Parse(ctx, f, filePath)
	f.Close()
	if parseErr != nil {
		err := apperr.Extraction(op, string(format)+" 解析失败", parseErr)
		e.metrics.ObserveExtraction(string(format), metrics.OutcomeError)
		tracing.RecordAppError(span, err)
		logger.Ctx(ctx).Warn().Err(parseErr).Str("file", filePath).Msg("文档解析失败，保留原文件")
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = e.placeholder
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Ctx(ctx).Warn().Err(err).Str("file", filePath).Msg("删除已提取的上传文件失败")
	}

	e.metrics.ObserveExtraction(string(format), metrics.OutcomeOK)
	span.SetAttributes(attribute.Int("text.length", len(text)))
	logger.Ctx(ctx).Debug().Str("format", string(format)).Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).Msg("文档提取完成")
	return text, nil
}
