// API Gatewayサービスのエントリポイント。
// クライアント単位のレート制限、内部サービスのヘルスチェック集約、
// ルート一覧の公開、設定されたクラスタへのリバースプロキシを担当する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/gateway/internal/config"
	"github.com/nao1215/gateway/internal/gateway"
	"github.com/nao1215/gateway/pkg/httpclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd はGatewayを起動するルートコマンドを生成する。
// version と health のサブコマンドを持つ。
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "gateway",
		Short:         "API Gateway front door with rate limiting and health aggregation",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server, err := gateway.NewServer(ctx, cfg, logger)
			if err != nil {
				logger.Error("Gatewayサーバーの初期化に失敗", zap.Error(err))
				return err
			}
			defer func() {
				if err := server.Close(); err != nil {
					logger.Warn("リソースの解放に失敗", zap.Error(err))
				}
			}()

			logger.Info("設定を読み込みました",
				zap.String("config", configPath),
				zap.String("port", cfg.Server.Port),
				zap.Int("rate_limit", cfg.RateLimit.Limit),
				zap.Duration("rate_window", cfg.RateLimit.Window),
				zap.String("rate_backend", cfg.RateLimit.Backend),
				zap.Int("clusters", len(cfg.ReverseProxy.Clusters)),
				zap.Int("routes", len(cfg.ReverseProxy.Routes)),
			)

			if err := server.Run(ctx); err != nil {
				logger.Error("Gatewayサービスが異常終了しました", zap.Error(err))
				return err
			}
			logger.Info("Gatewayサービスを停止しました")
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "設定ファイルのパス（YAML/JSON）")

	rootCmd.AddCommand(newVersionCmd(), newHealthCmd())
	return rootCmd
}

// newVersionCmd はバージョンを表示するコマンドを生成する。
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "gateway version %s\n", gateway.Version); err != nil {
				return fmt.Errorf("バージョンの出力に失敗: %w", err)
			}
			return nil
		},
	}
}

// newHealthCmd は起動中のGatewayの/healthを確認するコマンドを生成する。
// コンテナのヘルスチェックから呼び出すことを想定している。
func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run a health check against a running gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := httpclient.New(addr, httpclient.WithTimeout(timeout))
			if err := client.Probe(ctx, "health"); err != nil {
				return fmt.Errorf("ヘルスチェックに失敗: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Healthy")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080/", "GatewayのベースURL（末尾のスラッシュを含む）")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "ヘルスチェックのタイムアウト")
	return cmd
}

// newLogger は設定に応じたzapロガーを生成する。
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}
	return logger.With(zap.String("service", "gateway")), nil
}
