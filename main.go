package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"salesrep/config"
	"salesrep/llm/agent"
	"salesrep/logging"
	"salesrep/tui/chat"
)

var (
	cfg      *config.Config
	logLevel string
)

func init() {
	// Load .env file if exists
	config.LoadEnv(nil)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, catalogCmd)
}

var rootCmd = &cobra.Command{
	Use:   "salesrep",
	Short: "Nuestro Queso virtual sales representative",
	Long: `salesrep answers customer questions about Hispanic Cheese Makers products.

It scrapes the allow-listed pages of the website, uploads the downloadable
sell sheets to the model provider and shows product, plant and lab photos
on request.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		return nil
	},
	RunE: runChat,
}

// runChat 启动终端聊天界面，日志写入文件避免破坏 alt screen
func runChat(cmd *cobra.Command, args []string) error {
	log, closer, err := logging.NewFileLogger(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := agent.SetupRuntime(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	session := agent.NewSession()
	defer session.Close()

	// 初始化UI界面
	program := tea.NewProgram(
		chat.InitialModel(ctx, rt, session),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		log.WithError(err).Error("chat UI exited")
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
