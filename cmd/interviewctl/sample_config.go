package main

import (
	"fmt"

	"interview-coach/internal/config"

	"github.com/spf13/pflag"
)

func runSampleConfig(args []string) error {
	fs := pflag.NewFlagSet("sample-config", pflag.ContinueOnError)
	out := fs.StringP("out", "o", "config.sample.yaml", "输出路径")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.CreateSampleConfig(*out); err != nil {
		return err
	}
	fmt.Printf("示例配置已写入: %s\n", *out)
	return nil
}

