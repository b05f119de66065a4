package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/cobra"
)

func newForwardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Manage TCP port forwards of a tunnel",
	}
	cmd.AddCommand(
		newForwardAddCmd(),
		newForwardRemoveCmd(),
		newForwardListCmd(),
		newForwardDetailCmd(),
		newForwardRestartCmd(),
		newForwardAllCmd("start-all", "Start every forward of a tunnel", (*service.ForwardService).StartAllForwards),
		newForwardAllCmd("stop-all", "Stop every forward of a tunnel", (*service.ForwardService).StopAllForwards),
		newForwardAllCmd("restart-all", "Restart every forward of a tunnel", (*service.ForwardService).RestartAllForwards),
		newForwardTemplateCmd(),
	)
	return cmd
}

func parsePortArg(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		return 0, &service.ValidationError{Token: arg, Msg: "Invalid port number"}
	}
	return port, nil
}

func printBatch(cmd *cobra.Command, report *service.BatchReport) error {
	fmt.Fprintln(cmd.OutOrStdout(), renderLines(report.String()))
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d port(s) failed", n)
	}
	return nil
}

func newForwardAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <tunnel> <ports>",
		Short:   "Create forwards for a comma separated port list",
		Args:    cobra.ExactArgs(2),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			report, err := svc.Lifecycle.AddForwards(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printBatch(cmd, report)
		},
	}
}

func newForwardRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <tunnel> <ports>",
		Aliases: []string{"rm"},
		Short:   "Remove forwards for a comma separated port list",
		Args:    cobra.ExactArgs(2),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			report, err := svc.Lifecycle.RemoveForwards(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printBatch(cmd, report)
		},
	}
}

func newForwardListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <tunnel>",
		Short: "List forwards with their unit state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			_, units, err := svc.Lifecycle.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderForwards(units))
			return nil
		},
	}
}

func newForwardDetailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <tunnel> <port>",
		Short: "Show systemctl status of one forward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePortArg(args[1])
			if err != nil {
				return err
			}
			return withForwards(cmd.Context(), args[0], func(ctx context.Context, fwd *service.ForwardService) error {
				fmt.Fprintln(cmd.OutOrStdout(), fwd.ForwardDetail(ctx, port))
				return nil
			})
		},
	}
}

func newForwardRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "restart <tunnel> <port>",
		Short:   "Restart one forward",
		Args:    cobra.ExactArgs(2),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePortArg(args[1])
			if err != nil {
				return err
			}
			return withForwards(cmd.Context(), args[0], func(ctx context.Context, fwd *service.ForwardService) error {
				msg, err := fwd.RestartForward(ctx, port)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
				return nil
			})
		},
	}
}

func newForwardAllCmd(use, short string, fn func(*service.ForwardService, context.Context) *service.BatchReport) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <tunnel>",
		Short:   short,
		Args:    cobra.ExactArgs(1),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withForwards(cmd.Context(), args[0], func(ctx context.Context, fwd *service.ForwardService) error {
				return printBatch(cmd, fn(fwd, ctx))
			})
		},
	}
}

func newForwardTemplateCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:     "template <tunnel> [target-ip]",
		Short:   "Install the forward unit template, optionally changing its target",
		Args:    cobra.RangeArgs(1, 2),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withForwards(cmd.Context(), args[0], func(ctx context.Context, fwd *service.ForwardService) error {
				var msg string
				var err error
				switch {
				case remove:
					msg, err = fwd.RemoveTemplate(ctx)
				case len(args) == 2:
					msg, err = fwd.UpdateTemplate(ctx, args[1])
				default:
					msg, err = fwd.InstallTemplate(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the template instead")
	return cmd
}

// withForwards runs fn on the forward service of a stored tunnel while
// holding the tunnel lock.
func withForwards(ctx context.Context, name string, fn func(context.Context, *service.ForwardService) error) error {
	svc, err := services()
	if err != nil {
		return err
	}
	return svc.Lifecycle.WithTunnel(name, func(cfg *model.Tunnel) error {
		return fn(ctx, svc.Lifecycle.Forwards(cfg))
	})
}
