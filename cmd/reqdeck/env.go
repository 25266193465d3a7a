package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/environment"
)

func newEnvCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environments",
	}
	cmd.AddCommand(newEnvListCmd(v), newEnvUseCmd(v), newEnvSetCmd(v), newEnvRmCmd(v))
	return cmd
}

func newEnvListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List environments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				return a.printer.PrintEnvironments(a.ws.Environments(), a.ws.ActiveEnvironmentID())
			})
		},
	}
}

func newEnvUseCmd(v *viper.Viper) *cobra.Command {
	var none bool
	cmd := &cobra.Command{
		Use:   "use [env]",
		Short: "Select the active environment by id or name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if none == (len(args) == 1) {
				return errors.New("give an environment or --none")
			}
			return withApp(cmd, v, func(a *app) error {
				if none {
					if err := a.ws.SetActiveEnvironment(""); err != nil {
						return err
					}
					return a.printer.PrintNotice("No environment active")
				}
				env, err := a.ws.FindEnvironment(args[0])
				if err != nil {
					return err
				}
				if err := a.ws.SetActiveEnvironment(env.ID); err != nil {
					return err
				}
				return a.printer.PrintNotice(fmt.Sprintf("Active environment: %s", env.Name))
			})
		},
	}
	cmd.Flags().BoolVar(&none, "none", false, "Clear the active environment")
	return cmd
}

func newEnvSetCmd(v *viper.Viper) *cobra.Command {
	var disabled bool
	cmd := &cobra.Command{
		Use:   "set <env> [key=value...]",
		Short: "Create an environment or set its variables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return withApp(cmd, v, func(a *app) error {
				env, err := a.ws.FindEnvironment(args[0])
				switch {
				case errors.Is(err, workspace.ErrNotFound):
					env = &environment.Environment{Name: strings.TrimSpace(args[0])}
				case err != nil:
					return err
				}
				for _, nv := range vars {
					nv.Enabled = !disabled
					env.Variables = setVariable(env.Variables, nv)
				}
				stored := a.ws.UpsertEnvironment(env)
				return a.printer.PrintNotice(fmt.Sprintf("Environment %s has %d variable(s)", stored.Name, len(stored.Variables)))
			})
		},
	}
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Store the variables disabled")
	return cmd
}

func newEnvRmCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <env> [key...]",
		Short: "Delete an environment, or only the named variables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				env, err := a.ws.FindEnvironment(args[0])
				if err != nil {
					return err
				}
				if len(args) == 1 {
					if err := a.ws.DeleteEnvironment(env.ID); err != nil {
						return err
					}
					return a.printer.PrintNotice(fmt.Sprintf("Environment %s deleted", env.Name))
				}

				drop := make(map[string]bool, len(args)-1)
				for _, key := range args[1:] {
					drop[key] = true
				}
				kept := env.Variables[:0]
				for _, variable := range env.Variables {
					if !drop[variable.Key] {
						kept = append(kept, variable)
					}
				}
				env.Variables = kept
				stored := a.ws.UpsertEnvironment(env)
				return a.printer.PrintNotice(fmt.Sprintf("Environment %s has %d variable(s)", stored.Name, len(stored.Variables)))
			})
		},
	}
}

func parseAssignments(args []string) ([]environment.Variable, error) {
	vars := make([]environment.Variable, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", arg)
		}
		vars = append(vars, environment.Variable{Key: key, Value: value})
	}
	return vars, nil
}

// setVariable replaces every variable named like nv, keeping the position
// of the first one, or appends nv.
func setVariable(vars []environment.Variable, nv environment.Variable) []environment.Variable {
	out := make([]environment.Variable, 0, len(vars)+1)
	placed := false
	for _, existing := range vars {
		if existing.Key != nv.Key {
			out = append(out, existing)
			continue
		}
		if !placed {
			out = append(out, nv)
			placed = true
		}
	}
	if !placed {
		out = append(out, nv)
	}
	return out
}
