// Command srwactl runs operator actions against the chain directly, with the
// same configuration and keys as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"srwa/internal/app"
	"srwa/internal/platform/config"
	"srwa/pkg/requestcontext"
)

var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "srwactl",
		Short:         "Operate restricted-token compliance, distribution and purchase orders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Log service activity to stderr")

	root.AddCommand(hookCmd())
	root.AddCommand(complianceCmd())
	root.AddCommand(distributeCmd())
	root.AddCommand(ordersCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withServices builds the services for one command invocation and closes
// them afterwards, so buffered audit events are written before exit.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, services *app.App) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := requestcontext.WithTime(cmd.Context(), time.Now())
	ctx = requestcontext.WithActor(ctx, operator())

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()
	return fn(ctx, services)
}

func operator() string {
	if u, err := user.Current(); err == nil {
		return "srwactl:" + u.Username
	}
	return "srwactl"
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
