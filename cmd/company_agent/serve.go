package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/company-agent/internal/server"
	"github.com/jonathan/company-agent/internal/server/ratelimit"
)

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  `Start an HTTP server exposing the chat, chat history, CSV upload and company endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			jwtConfig, err := cfg.NewJWTConfig()
			if err != nil {
				return fmt.Errorf("failed to create JWT config: %w", err)
			}
			passwords, err := cfg.NewPasswordConfig()
			if err != nil {
				return fmt.Errorf("failed to create password config: %w", err)
			}
			if jwtConfig == nil {
				a.logger.Warn("admin auth disabled: company writes and CSV upload are open")
			}

			srv, err := server.New(server.Deps{
				Store:    a.store,
				Chat:     a.chat,
				Importer: a.importer,
				Logger:   a.logger.Named("http"),
			}, server.Options{
				Port:              cfg.Server.Port,
				ShutdownTimeout:   cfg.Server.ShutdownTimeout,
				MaxUploadBytes:    cfg.Server.MaxUploadBytes,
				CORSOrigin:        cfg.Server.CORSOrigin,
				JWT:               jwtConfig,
				Passwords:         passwords,
				AdminPasswordHash: cfg.Auth.AdminPasswordHash,
				RateLimit:         ratelimit.NewConfig(cfg.RateLimit),
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8000, "Port to listen on (overrides PORT and the config file)")
	return cmd
}
