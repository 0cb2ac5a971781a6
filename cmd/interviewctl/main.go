// interviewctl 面试服务的命令行工具：生成表现报告、提取简历文本、生成示例配置。
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const usage = `用法: interviewctl <command> [flags]

命令:
  report         为用户生成表现报告并输出 JSON
  extract        提取 PDF/DOCX 简历文本
  sample-config  生成示例配置文件
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "report":
		err = runReport(args)
	case "extract":
		err = runExtract(args)
	case "sample-config":
		err = runSampleConfig(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "错误: 未知命令 '%s'\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
