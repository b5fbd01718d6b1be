package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"salesrep/llm/agent"
	"salesrep/logging"
	"salesrep/metrics"
	"salesrep/server"
)

var listenAddr string

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (default LISTEN_ADDR or :8080)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat assistant over HTTP",
	Long: `Starts the JSON chat API:

  POST   /api/chat                     ask a question (optional session_id)
  POST   /api/sessions                 start a session
  GET    /api/sessions/:id/turns       session log and attached documents
  POST   /api/sessions/:id/documents   attach a catalog or sell sheet (multipart "file")
  DELETE /api/sessions/:id             drop a session
  GET    /api/assets?ref=              server-side image proxy
  GET    /health, /metrics, /logo`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := agent.SetupRuntime(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer rt.Close()

	// warm the knowledge snapshot while the listener comes up
	go rt.Warm(ctx)

	addr := cfg.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}
	srvCfg := server.DefaultConfig(addr)
	srvCfg.UploadDir = filepath.Join(cfg.WorkDir, "uploads")
	srvCfg.MaxSessions = cfg.MaxSessions
	srvCfg.SessionTTL = cfg.SessionTTL
	handler := server.NewHandler(rt, srvCfg, log)
	return server.Start(ctx, srvCfg, server.NewRouter(handler, log, m), log)
}
