package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		fmt.Fprintf(os.Stdout, "listen_addr = %s\n", cfg.ListenAddr)
		fmt.Fprintf(os.Stdout, "log_level = %s\n", cfg.LogLevel)
		fmt.Fprintf(os.Stdout, "db_path = %s\n", cfg.DBPath)
		fmt.Fprintf(os.Stdout, "max_concurrent = %d\n", cfg.MaxConcurrent)
		fmt.Fprintf(os.Stdout, "wechat.token = %s\n", mask(cfg.WeChat.Token))
		fmt.Fprintf(os.Stdout, "wechat.app_id = %s\n", cfg.WeChat.AppID)
		fmt.Fprintf(os.Stdout, "wechat.app_secret = %s\n", mask(cfg.WeChat.AppSecret))
		fmt.Fprintf(os.Stdout, "wechat.aes_key = %s\n", mask(cfg.WeChat.AESKey))
		fmt.Fprintf(os.Stdout, "llm.base_url = %s\n", cfg.LLM.BaseURL)
		fmt.Fprintf(os.Stdout, "llm.api_key = %s\n", mask(cfg.LLM.APIKey))
		fmt.Fprintf(os.Stdout, "llm.model = %s\n", cfg.LLM.Model)
		fmt.Fprintf(os.Stdout, "llm.max_tokens = %d\n", cfg.LLM.MaxTokens)
		fmt.Fprintf(os.Stdout, "llm.timeout = %s\n", cfg.LLM.Timeout)
		fmt.Fprintf(os.Stdout, "history.limit = %d\n", cfg.History.Limit)
		fmt.Fprintf(os.Stdout, "history.lookback = %s\n", cfg.History.Lookback)
		fmt.Fprintf(os.Stdout, "history.max_gap = %s\n", cfg.History.MaxGap)
		fmt.Fprintf(os.Stdout, "dedup.attempts = %d\n", cfg.Dedup.Attempts)
		fmt.Fprintf(os.Stdout, "dedup.delay = %s\n", cfg.Dedup.Delay)
		return nil
	},
}

func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "***"
}
