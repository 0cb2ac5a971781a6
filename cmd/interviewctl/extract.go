package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"interview-coach/internal/config"
	"interview-coach/internal/extractor"

	"github.com/spf13/pflag"
)

func runExtract(args []string) error {
	fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	file := fs.StringP("file", "f", "", "PDF 或 DOCX 简历文件路径 (必填)")
	mimeHint := fs.String("mime", "", "MIME 类型，为空时按扩展名判断")
	keep := fs.Bool("keep", false, "保留原文件 (提取成功后默认删除)")
	maxLen := fs.Int("maxlen", -1, "显示的文本最大长度，-1 显示全部")
	save := fs.String("save", "", "保存提取内容到文件")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		fs.Usage()
		return fmt.Errorf("必须提供 --file")
	}

	absPath, err := filepath.Abs(*file)
	if err != nil {
		return fmt.Errorf("无法获取文件的绝对路径: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ex, err := extractor.New(ctx, extractorConfig(), nil)
	if err != nil {
		return err
	}

	target := absPath
	if *keep {
		// 在副本上提取，原文件不受删除影响
		target, err = copyToTemp(absPath)
		if err != nil {
			return err
		}
		defer os.Remove(target)
	}

	start := time.Now()
	text, err := ex.ExtractText(ctx, target, *mimeHint)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "提取完成! 耗时: %v, 总计 %d 字符\n", time.Since(start), len([]rune(text)))

	display := text
	if r := []rune(text); *maxLen >= 0 && len(r) > *maxLen {
		display = string(r[:*maxLen]) + "...(已截断，使用 --maxlen 显示更多)"
	}
	fmt.Println(display)

	if *save != "" {
		if err := os.WriteFile(*save, []byte(text), 0o644); err != nil {
			return fmt.Errorf("保存到文件失败: %w", err)
		}
		fmt.Fprintf(os.Stderr, "文本已保存到: %s\n", *save)
	}
	return nil
}

func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "interviewctl-*"+filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("复制文件失败: %w", err)
	}
	return dst.Name(), dst.Close()
}

// extractorConfig extract 命令不读取配置文件，只使用默认值
func extractorConfig() config.ExtractorConfig {
	return config.ExtractorConfig{PDFTimeout: "30s"}
}
