package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/runtime"
	"github.com/tusklang/tusk-go/internal/services"
)

func newServicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Manage background services from the [services] section",
	}

	start := &cobra.Command{
		Use:   "start [NAME]",
		Short: "Start one or all configured services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, mgr, specs, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			for _, spec := range filterSpecs(specs, args) {
				status, err := mgr.Start(cmd.Context(), spec)
				if err != nil {
					return err
				}
				note(cmd.OutOrStdout(), "%s: %s (pid %d)", status.Name, status.State, status.PID)
			}
			return nil
		},
	}

	stop := &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a running service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, mgr, _, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := mgr.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "%s stopped", args[0])
			return nil
		},
	}

	restart := &cobra.Command{
		Use:   "restart NAME",
		Short: "Restart a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, mgr, specs, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			matched := filterSpecs(specs, args)
			if len(matched) == 0 {
				return fmt.Errorf("service %q not configured", args[0])
			}
			status, err := mgr.Restart(cmd.Context(), matched[0])
			if err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "%s: %s (pid %d)", status.Name, status.State, status.PID)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every registered service",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, mgr, _, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			statuses, err := mgr.StatusAll(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), statuses)
			}
			if len(statuses) == 0 {
				note(cmd.OutOrStdout(), "no registered services")
				return nil
			}
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s pid=%d port=%d\n", s.Name, s.State, s.PID, s.Port)
			}
			return nil
		},
	}

	var tailLines int
	logs := &cobra.Command{
		Use:   "logs NAME",
		Short: "Print a service's recent log output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, mgr, _, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			return mgr.Logs(cmd.Context(), args[0], cmd.OutOrStdout(), tailLines)
		},
	}
	logs.Flags().IntVarP(&tailLines, "tail", "n", 100, "Lines to show")

	health := &cobra.Command{
		Use:   "health",
		Short: "Probe every running service's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, mgr, specs, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := mgr.Health(cmd.Context(), specs)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			for name, outcome := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", name, outcome)
			}
			return nil
		},
	}

	cmd.AddCommand(start, stop, restart, status, logs, health)
	return cmd
}

func serviceManager(cmd *cobra.Command) (*runtime.Runtime, *services.Manager, []services.Spec, error) {
	rt, err := newRuntime(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if rt.Store() == nil {
		rt.Close()
		return nil, nil, nil, fmt.Errorf("state store unavailable; services need ~/.tsk")
	}

	var specs []services.Spec
	if pn := rt.Peanut(); pn != nil {
		if section, ok := pn.Get("services").(map[string]any); ok {
			specs = services.SpecsFromSection(flatten(section))
		}
	}

	mgr := services.NewManager(rt.Store(), rt.Logger(), "")
	return rt, mgr, specs, nil
}

func filterSpecs(specs []services.Spec, args []string) []services.Spec {
	if len(args) == 0 {
		return specs
	}
	for _, s := range specs {
		if s.Name == args[0] {
			return []services.Spec{s}
		}
	}
	return nil
}

// flatten turns a nested section map into dotted keys, the shape
// SpecsFromSection expects.
func flatten(section map[string]any) map[string]any {
	out := make(map[string]any)
	for name, v := range section {
		entries, ok := v.(map[string]any)
		if !ok {
			out[name] = v
			continue
		}
		for field, fv := range entries {
			out[name+"."+field] = fv
		}
	}
	return out
}
