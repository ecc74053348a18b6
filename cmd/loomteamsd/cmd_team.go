package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/treetopdevs/loomteams/pkg/teams"
)

func newTeamCommand(configPath, dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Create, staff, and dissolve agent teams",
	}
	cmd.AddCommand(
		newTeamCreateCommand(configPath, dbPath),
		newTeamSpawnCommand(configPath, dbPath),
		newTeamSpawnTemplateCommand(configPath, dbPath),
		newTeamListAgentsCommand(configPath, dbPath),
		newTeamDissolveCommand(configPath, dbPath),
	)
	return cmd
}

func newTeamCreateCommand(configPath, dbPath *string) *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a root team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			tm, err := rt.manager.CreateTeam(args[0], projectPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team %s created (depth %d)\n", tm.TeamID, tm.Depth)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", ".", "project path the team operates on")
	return cmd
}

func newTeamSpawnCommand(configPath, dbPath *string) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "spawn <team_id> <agent_name> <role>",
		Short: "Spawn an agent onto a team",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ag, err := rt.manager.SpawnAgent(args[0], args[1], args[2], teams.SpawnOpts{Model: model})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent %s spawned with model %s\n", args[1], ag.Model())
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "override the role catalog's default model")
	return cmd
}

func newTeamSpawnTemplateCommand(configPath, dbPath *string) *cobra.Command {
	var templatesFile string
	cmd := &cobra.Command{
		Use:   "spawn-template <team_id> <template_name>",
		Short: "Spawn every agent from a named team template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if templatesFile != "" {
				if err := rt.cfg.LoadTemplatesFile(templatesFile); err != nil {
					return err
				}
			}
			tmpl, ok := rt.cfg.Template(args[1])
			if !ok {
				return fmt.Errorf("no such team template: %s", args[1])
			}

			agents, err := rt.manager.SpawnTemplate(args[0], tmpl)
			if err != nil {
				return err
			}
			for _, ag := range agents {
				fmt.Fprintf(cmd.OutOrStdout(), "spawned %s (%s)\n", ag.Model(), args[1])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&templatesFile, "templates", "", "YAML file of team templates to load first")
	return cmd
}

func newTeamListAgentsCommand(configPath, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "agents <team_id>",
		Short: "List a team's agent roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			roster, err := rt.manager.ListAgents(args[0])
			if err != nil {
				return err
			}
			for _, entry := range roster {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-12s %-8s %s\n", entry.Name, entry.Role, entry.Status, entry.Model)
			}
			return nil
		},
	}
}

func newTeamDissolveCommand(configPath, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dissolve <team_id>",
		Short: "Dissolve a team and every sub-team beneath it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.manager.DissolveTeam(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team %s dissolved\n", args[0])
			return nil
		},
	}
}
