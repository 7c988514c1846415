package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/csvchat/internal/chat"
	cfgpkg "github.com/KaramelBytes/csvchat/internal/config"
	"github.com/KaramelBytes/csvchat/internal/session"
	"github.com/KaramelBytes/csvchat/internal/web"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI",
	Example: `  csvchat serve
  csvchat serve --addr 0.0.0.0:8501
  CSVCHAT_LOG_FORMAT=json csvchat serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			c.ListenAddr = serveAddr
		}
		log := newLogger(cmd.ErrOrStderr(), c)
		slog.SetDefault(log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := session.NewStore(time.Duration(c.SessionTTLMin)*time.Minute, c.DefaultModel)
		go store.Run(ctx, time.Minute)

		exec := chat.NewExecutor(c, newRuntime, log)
		h := web.NewHandler(c, store, exec, log)

		res := cfgpkg.Resolve(c, "", "")
		log.Info("starting csvchat",
			"addr", c.ListenAddr,
			"model", res.Model,
			"api_key", res.Source,
			"production", c.Production,
		)
		return web.NewServer(c.ListenAddr, h.Routes(), log).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
}
