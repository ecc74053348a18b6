// loomteamsd is the reference entrypoint wiring the Teams subsystem's
// components into one running installation: a shared Pub/Sub fabric, a
// Model Router, rate limiting and cost tracking, a Teams Manager, and a
// decision graph, fronted by a small CLI for operating teams by hand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit string
)

func formatVersion() string {
	if gitCommit != "" {
		return fmt.Sprintf("%s (%s)", version, gitCommit)
	}
	return version
}

func newRootCommand() *cobra.Command {
	var configPath string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "loomteamsd",
		Short: "Operate long-lived AI coding agent teams",
		Long: "loomteamsd wires the teams runtime (pub/sub fabric, shared " +
			"context, rate limiting, cost tracking, model routing, and the " +
			"teams manager) into a single installation and exposes it as a CLI.",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.json")
	cmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "path to the sqlite persistence store")

	cmd.AddCommand(
		newVersionCommand(),
		newTeamCommand(&configPath, &dbPath),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loomteamsd version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "loomteamsd %s\n", formatVersion())
			return nil
		},
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "loomteams.json"
	}
	return home + "/.loomteams/config.json"
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "loomteams.db"
	}
	return home + "/.loomteams/loomteams.db"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
