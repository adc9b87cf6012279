package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smash64-online/netcheck/internal/checker"
	"github.com/smash64-online/netcheck/internal/cli"
	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/scheduler"
)

var errCheckFailed = errors.New("check failed")

func pingCmd(flags *globalFlags) *cobra.Command {
	var reachOnly bool

	cmd := &cobra.Command{
		Use:   "ping <host> <port>",
		Short: "Ping a Kaillera server and report the average latency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := events.CheckServer
			if reachOnly {
				kind = events.CheckConnection
			}
			return runCheck(cmd, flags, kind, args)
		},
	}

	cmd.Flags().BoolVar(&reachOnly, "reach", false, "only report whether the server answers")

	return cmd
}

func joinCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join <host> <port>",
		Short: "Join a Kaillera server as the bot, chat and leave",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, flags, events.CheckJoin, args)
		},
	}
}

func p2pCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "p2p <host> [port]",
		Short: "Connect to a P2P host and greet the player",
		Long: fmt.Sprintf(`Connect to a player's P2P host as the bot, send the check message
and disconnect. The port defaults to %d.`, config.DefaultP2PPort),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, flags, events.CheckP2P, args)
		},
	}
}

func runCheck(cmd *cobra.Command, flags *globalFlags, kind events.CheckKind, args []string) error {
	cfg, err := loadConfig(flags, true)
	if err != nil {
		return err
	}

	req := checker.Request{Host: args[0], Via: "cli", From: "cli"}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		req.Port = port
	}

	chk, err := checker.New(cfg.GetChecker(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	res := chk.Run(ctx, kind, req)
	if kind == events.CheckP2P && req.Port == 0 {
		req.Port = cfg.GetChecker().DefaultP2PPort
	}
	cli.RenderResult(cmd.OutOrStdout(), kind, req, res)

	if !res.Success {
		return fmt.Errorf("%w: %s", errCheckFailed, res.Message)
	}
	return nil
}

func monitorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run every configured monitor target once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}

			monitor := cfg.GetMonitor()
			if len(monitor.Targets) == 0 {
				return fmt.Errorf("no monitor targets configured in %s", cfg.Path())
			}

			chk, err := checker.New(cfg.GetChecker(), nil)
			if err != nil {
				return err
			}

			sched := scheduler.NewScheduler(monitor, chk, nil)
			tick := sched.RunOnce(cmd.Context())
			cli.RenderMonitor(cmd.OutOrStdout(), sched.Status())

			if tick.Failed > 0 {
				return fmt.Errorf("%w: %d of %d targets", errCheckFailed, tick.Failed, tick.Targets)
			}
			return nil
		},
	}
}
