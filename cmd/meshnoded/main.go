package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meshchain/core"
	"meshchain/pkg/config"
)

// version is the daemon's build version, stamped by release tooling.
const version = "0.1.0-dev"

// main wires the cobra root command. The CLI surface is intentionally
// minimal — start/health/version only — because spec.md §1 delegates
// state-changing operator/wallet commands to an external collaborator
// outside this core (SPEC_FULL.md §A).
func main() {
	// .env is optional — ignore a missing file the way the teacher's
	// explorer/walletserver entrypoints do, but surface any other error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "meshnoded: loading .env: %v\n", err)
	}

	rootCmd := &cobra.Command{Use: "meshnoded"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(versionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a meshchain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runNode(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay name (e.g. dev, prod)")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "print a notice; this command does not query a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("health check requires a running node; this command does not query one")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func runNode(ctx context.Context, cfg *config.Config) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	level2 := core.Lvl2
	if cfg.Consensus.SecurityLevel == "lvl5" {
		level2 = core.Lvl5
	}
	_, identity, err := core.GenerateKeypair(level2)
	if err != nil {
		return fmt.Errorf("generate node identity: %w", err)
	}
	defer identity.Destroy()

	bus := core.NewEventBus()
	orch := core.NewOrchestrator(bus, log)
	registerComponents(orch, cfg, identity, log)

	skew := core.DefaultAllowedSkew
	if cfg.Network.HandshakeSkewMS > 0 {
		skew = time.Duration(cfg.Network.HandshakeSkewMS) * time.Millisecond
	}
	log.WithFields(logrus.Fields{
		"network_id":    cfg.Network.ID,
		"dev_mode":      cfg.Network.DevMode,
		"handshake_skew": skew,
	}).Info("meshnoded: starting")

	if err := orch.StartAll(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	<-ctx.Done()
	return orch.StopAll(context.Background())
}
