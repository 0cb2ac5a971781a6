package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParser struct {
	text string
	err  error
	got  []byte
}

func (p *fakeParser) Parse(_ context.Context, r io.Reader, _ string) (string, error) {
	p.got, _ = io.ReadAll(r)
	return p.text, p.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// buildDocx 生成只包含正文部件的最小 DOCX
func buildDocx(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const docxXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Go </w:t></w:r><w:r><w:t>Engineer</w:t></w:r></w:p>
<w:p><w:r><w:t>Skills:</w:t><w:tab/><w:t>Go, SQL</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("a.bin", MimePDF)
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = DetectFormat("resume.DOCX", "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, FormatDOCX, f)

	_, err = DetectFormat("notes.txt", "text/plain")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestExtractPDFDeletesFileOnSuccess(t *testing.T) {
	p := &fakeParser{text: "  Jane Doe\nGo Engineer \n"}
	e := NewWithParsers(map[Format]DocumentParser{FormatPDF: p}, "", nil)
	path := writeFile(t, "resume.pdf", []byte("%PDF-fake"))

	text, err := e.ExtractText(context.Background(), path, MimePDF)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nGo Engineer", text)
	assert.Equal(t, []byte("%PDF-fake"), p.got)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "成功提取后应删除文件")
}

func TestExtractEmptyReturnsPlaceholder(t *testing.T) {
	e := NewWithParsers(map[Format]DocumentParser{FormatPDF: &fakeParser{text: " \n "}}, "", nil)
	path := writeFile(t, "blank.pdf", []byte("x"))

	text, err := e.ExtractText(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaceholder, text)
}

func TestExtractUnsupportedKeepsFile(t *testing.T) {
	e := NewWithParsers(map[Format]DocumentParser{FormatPDF: &fakeParser{}}, "", nil)
	path := writeFile(t, "resume.txt", []byte("plain"))

	_, err := e.ExtractText(context.Background(), path, "text/plain")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "不支持的格式不应删除文件")
}

func TestExtractMissingFile(t *testing.T) {
	e := NewWithParsers(map[Format]DocumentParser{FormatPDF: &fakeParser{}}, "", nil)

	_, err := e.ExtractText(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), "")
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
}

func TestExtractParserFailureKeepsFile(t *testing.T) {
	e := NewWithParsers(map[Format]DocumentParser{FormatPDF: &fakeParser{err: errors.New("corrupt xref")}}, "", nil)
	path := writeFile(t, "broken.pdf", []byte("x"))

	_, err := e.ExtractText(context.Background(), path, "")
	assert.ErrorIs(t, err, apperr.ErrExtraction)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestExtractDOCX(t *testing.T) {
	e := NewWithParsers(map[Format]DocumentParser{FormatDOCX: DOCXParser{}}, "", nil)
	path := buildDocx(t, docxXML)

	text, err := e.ExtractText(context.Background(), path, MimeDOCX)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nGo Engineer\nSkills:\tGo, SQL", text)
}

func TestExtractEmptyDOCX(t *testing.T) {
	e := NewWithParsers(map[Format]DocumentParser{FormatDOCX: DOCXParser{}}, "", nil)
	path := buildDocx(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p/></w:body></w:document>`)

	text, err := e.ExtractText(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaceholder, text)
}

func TestDOCXWithoutBodyPart(t *testing.T) {
	path := writeFile(t, "fake.docx", []byte("not a zip"))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = DOCXParser{}.Parse(context.Background(), f, path)
	assert.Error(t, err)
}

func TestNewBuildsEinoPDFParser(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := New(ctx, config.ExtractorConfig{PDFTimeout: "10s"}, nil)
	require.NoError(t, err)
	assert.Contains(t, e.parsers, FormatPDF)
	assert.Contains(t, e.parsers, FormatDOCX)
	assert.Equal(t, DefaultPlaceholder, e.placeholder)
}
