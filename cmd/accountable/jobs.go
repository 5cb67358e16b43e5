package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/accountable/internal/middleware"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func settleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Run today's settlement once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.engine.RunDailySettlement(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one inactivity pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.engine.RunInactivityPass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func resetPointsCommand() *cobra.Command {
	var weekly bool
	cmd := &cobra.Command{
		Use:   "reset-points",
		Short: "Zero member points",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			reset := rt.engine.ResetAllPoints
			if weekly {
				reset = rt.engine.ResetWeeklyPoints
			}
			n, err := reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("reset %d members\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&weekly, "weekly", false, "only zero weekly points")
	return cmd
}

func hashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash to use as adminTokenHash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("token must not be empty")
			}
			hash, err := middleware.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
