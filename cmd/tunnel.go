package cmd

import (
	"fmt"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/cobra"
)

func newTunnelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Manage stored tunnel definitions",
	}
	cmd.AddCommand(
		newTunnelListCmd(),
		newTunnelShowCmd(),
		newTunnelCreateCmd(),
		newTunnelSetCmd(),
		newTunnelDeleteCmd(),
	)
	return cmd
}

func newTunnelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tunnels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			tunnels, err := svc.Store.All()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTunnels(tunnels))
			return nil
		},
	}
}

func newTunnelShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a stored tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			cfg, err := svc.Store.MustGet(args[0])
			if err != nil {
				return err
			}
			showTunnel(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func newTunnelCreateCmd() *cobra.Command {
	flags := &tunnelFlags{}
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tunnel with defaults, optionally setting fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, syncPorts, err := flags.portList(cmd.Flags())
			if err != nil {
				return err
			}
			if syncPorts {
				if err := requireRoot(cmd, args); err != nil {
					return err
				}
			}
			svc, err := services()
			if err != nil {
				return err
			}
			cfg, err := svc.Store.Create(args[0])
			if err != nil {
				return err
			}
			changed, err := flags.apply(cmd.Flags(), cfg)
			if err != nil {
				return err
			}
			if changed > 0 {
				if err := svc.Store.Save(cfg); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Tunnel '%s' created", cfg.Name)))
			if !syncPorts {
				return nil
			}
			return syncForwards(cmd, svc, cfg.Name, ports)
		},
	}
	flags.bind(cmd.Flags())
	return cmd
}

// newTunnelSetCmd edits stored fields. --ports is applied through the
// forward controller so units follow the port list.
func newTunnelSetCmd() *cobra.Command {
	flags := &tunnelFlags{}
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Update fields of a stored tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, syncPorts, err := flags.portList(cmd.Flags())
			if err != nil {
				return err
			}
			if syncPorts {
				if err := requireRoot(cmd, args); err != nil {
					return err
				}
			}
			svc, err := services()
			if err != nil {
				return err
			}
			changed := 0
			err = svc.Lifecycle.WithTunnel(args[0], func(cfg *model.Tunnel) error {
				n, err := flags.apply(cmd.Flags(), cfg)
				if err != nil {
					return err
				}
				changed = n
				if n == 0 {
					return nil
				}
				return svc.Store.Save(cfg)
			})
			if err != nil {
				return err
			}
			switch {
			case changed > 0:
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Tunnel '%s' updated", args[0])))
			case !syncPorts:
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("Nothing to update"))
			}
			if !syncPorts {
				return nil
			}
			return syncForwards(cmd, svc, args[0], ports)
		},
	}
	flags.bind(cmd.Flags())
	return cmd
}

func syncForwards(cmd *cobra.Command, svc *service.ServicesBundle, name string, ports []int) error {
	report, err := svc.Lifecycle.SyncForwards(cmd.Context(), name, ports)
	if err != nil {
		return err
	}
	return printBatch(cmd, report)
}

func newTunnelDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Short:   "Stop a tunnel, remove its forwards and forget it",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			out, err := svc.Lifecycle.Delete(cmd.Context(), args[0])
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), renderLines(out))
			}
			return err
		},
	}
}
