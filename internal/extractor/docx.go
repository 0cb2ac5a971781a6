package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// 解压后正文超过该大小视为异常文件
const maxDocxBodySize = 50 << 20

// DOCXParser 读取 word/document.xml 中的段落文本，每个段落一行
type DOCXParser struct{}

func (DOCXParser) Parse(ctx context.Context, r io.Reader, uri string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("读取 DOCX 失败: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("DOCX 不是有效的 zip 包 (URI: %s): %w", uri, err)
	}

	for _, f := range zr.File {
		if f.Name != docxBodyPart {
			continue
		}
		if f.UncompressedSize64 > maxDocxBodySize {
			return "", fmt.Errorf("DOCX 正文过大: %d bytes", f.UncompressedSize64)
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("打开 %s 失败: %w", docxBodyPart, err)
		}
		defer rc.Close()
		return paragraphsFromDocumentXML(ctx, io.LimitReader(rc, maxDocxBodySize))
	}
	return "", fmt.Errorf("DOCX 中缺少 %s (URI: %s)", docxBodyPart, uri)
}

// paragraphsFromDocumentXML 只关心 w:t / w:tab / w:br / w:p，其余标记忽略
func paragraphsFromDocumentXML(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
	)

	flush := func() {
		line := strings.TrimRight(para.String(), " \t")
		para.Reset()
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(line)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("解析 %s 失败: %w", docxBodyPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if para.Len() > 0 {
		flush()
	}
	return out.String(), nil
}
