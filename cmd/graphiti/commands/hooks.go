package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/hooks"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

const settingsHookCommand = "graphiti capture conversation --auto"

// NewHooksCommand creates the "hooks" command group wiring 4.J's install /
// uninstall / upgrade / status operations onto the git hooks directory of
// the current project, plus the AI-assistant settings file.
func NewHooksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage git hooks and AI-assistant settings integration",
	}

	cmd.AddCommand(newHooksInstallCommand())
	cmd.AddCommand(newHooksUninstallCommand())
	cmd.AddCommand(newHooksUpgradeCommand())
	cmd.AddCommand(newHooksStatusCommand())

	return cmd
}

func resolveProjectRoot() (string, error) {
	root, err := scope.FindProjectRoot("")
	if err != nil {
		return "", fmt.Errorf("find project root: %w", err)
	}

	if root == "" {
		return "", fmt.Errorf("not inside a git repository")
	}

	return root, nil
}

func newHooksInstallCommand() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:           "install",
		Short:         "Install git hooks and the AI-assistant settings hook",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			root, err := resolveProjectRoot()
			if err != nil {
				return err
			}

			installer := hooks.New(root + "/.git/hooks")

			for _, name := range hooks.HookNames {
				if err := installer.Install(name); err != nil {
					return fmt.Errorf("install hook %s: %w", name, err)
				}
			}

			if settingsPath != "" {
				if err := hooks.InstallSettingsHook(settingsPath, settingsHookCommand); err != nil {
					return fmt.Errorf("install settings hook: %w", err)
				}
			}

			fmt.Fprintf(cobraCmd.OutOrStdout(), "installed %d git hooks in %s\n", len(hooks.HookNames), root)

			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", "", "also install a Stop hook into this AI-assistant settings JSON file")

	return cmd
}

func newHooksUninstallCommand() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:           "uninstall",
		Short:         "Remove git hooks and the AI-assistant settings hook",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			root, err := resolveProjectRoot()
			if err != nil {
				return err
			}

			installer := hooks.New(root + "/.git/hooks")

			for _, name := range hooks.HookNames {
				if err := installer.Uninstall(name); err != nil {
					return fmt.Errorf("uninstall hook %s: %w", name, err)
				}
			}

			if settingsPath != "" {
				if err := hooks.RemoveSettingsHook(settingsPath); err != nil {
					return fmt.Errorf("remove settings hook: %w", err)
				}
			}

			fmt.Fprintf(cobraCmd.OutOrStdout(), "uninstalled git hooks in %s\n", root)

			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", "", "also remove the Stop hook from this AI-assistant settings JSON file")

	return cmd
}

func newHooksUpgradeCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "upgrade",
		Short:         "Upgrade legacy hook installations to the current template",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			root, err := resolveProjectRoot()
			if err != nil {
				return err
			}

			installer := hooks.New(root + "/.git/hooks")

			for _, name := range hooks.HookNames {
				if err := installer.Upgrade(name); err != nil {
					return fmt.Errorf("upgrade hook %s: %w", name, err)
				}
			}

			fmt.Fprintf(cobraCmd.OutOrStdout(), "upgraded git hooks in %s\n", root)

			return nil
		},
	}
}

func newHooksStatusCommand() *cobra.Command {
	format := new(string)

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show which hooks are installed",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			root, err := resolveProjectRoot()
			if err != nil {
				return err
			}

			installer := hooks.New(root + "/.git/hooks")

			status := make(map[string]bool, len(hooks.HookNames))
			for _, name := range hooks.HookNames {
				status[name] = installer.IsInstalled(name)
			}

			if *format == "json" {
				return printJSON(cobraCmd, status)
			}

			for _, name := range hooks.HookNames {
				fmt.Fprintf(cobraCmd.OutOrStdout(), "%-16s %v\n", name, status[name])
			}

			return nil
		},
	}

	cmd.Flags().StringVar(format, "format", "text", `output format: "text" or "json"`)

	return cmd
}
