package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"interview-coach/internal/app"
	"interview-coach/internal/config"
	"interview-coach/internal/logger"

	"github.com/spf13/pflag"
)

func runReport(args []string) error {
	fs := pflag.NewFlagSet("report", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "配置文件路径，留空时按搜索路径查找")
	userID := fs.StringP("user", "u", "", "用户ID (必填)")
	timeout := fs.Duration("timeout", 2*time.Minute, "整体超时")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		fs.Usage()
		return fmt.Errorf("必须提供 --user")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logger.Level, Format: "pretty"}); err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Aggregator.ComputeReport(ctx, *userID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
