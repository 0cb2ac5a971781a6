package extractor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// PDFParser 使用 eino PDF 解析器，不按页拆分，直接得到整篇文本
type PDFParser struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

// NewPDFParser timeout<=0 时不设置解析超时
func NewPDFParser(ctx context.Context, timeout time.Duration) (*PDFParser, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("创建 eino PDF 解析器失败: %w", err)
	}
	return &PDFParser{parser: p, timeout: timeout}, nil
}

func (p *PDFParser) Parse(ctx context.Context, r io.Reader, uri string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	docs, err := p.parser.Parse(ctx, r, einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("eino PDF 解析失败 (URI: %s): %w", uri, err)
	}

	// 正常情况下只有一个文档，多个时按顺序拼接
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc != nil {
			parts = append(parts, doc.Content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
