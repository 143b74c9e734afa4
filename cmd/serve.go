package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/estimator/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the estimate API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := api.New(env.Store, env.Orchestrator, env.Learner, env.Advisor, api.Config{
			JWTSecret:   cfg.Server.JWTSecret,
			CORSOrigins: cfg.Server.CORSOrigins,
			MemoryLimit: cfg.Pricing.MemoryLimit,
			MemoryCap:   cfg.Pricing.MemoryCap,
			Providers:   env.Gateway.Breakers,
		})
		return srv.ListenAndServe(ctx, cfg.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
