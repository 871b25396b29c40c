package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgwireclient/pgwire"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql> [args...]",
	Short: "Run a query and print the result as JSON object-mode rows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		sess, err := connectFromFlags(ctx, cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		queryArgs := make([]any, len(args)-1)
		for i, a := range args[1:] {
			queryArgs[i] = a
		}
		res, err := sess.QueryObject(ctx, pgwire.NewQuery(args[0], queryArgs...).WithObjectMode(true))
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(res.ObjectRows)
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <sql> [args...]",
	Short: "Run a statement and print its command tag and row count",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		sess, err := connectFromFlags(ctx, cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		queryArgs := make([]any, len(args)-1)
		for i, a := range args[1:] {
			queryArgs[i] = a
		}
		res, err := sess.QueryArray(ctx, pgwire.NewQuery(args[0], queryArgs...))
		if err != nil {
			return err
		}
		fmt.Printf("%s %d\n", res.Command, res.RowCount)
		return nil
	},
}

var poolStatsCmd = &cobra.Command{
	Use:   "pool-stats",
	Short: "Open a small pool against the resolved config and print its stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		cfg.Logger = newLogger()

		pool, err := pgwire.NewPool(ctx, cfg, 2, true)
		if err != nil {
			return err
		}
		defer pool.Close(ctx)

		return json.NewEncoder(os.Stdout).Encode(pool.Stats())
	},
}

func init() {
	rootCmd.AddCommand(queryCmd, execCmd, poolStatsCmd)
}
