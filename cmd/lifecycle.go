package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var errApplyFailed = errors.New("apply finished with failures")

func newApplyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "apply",
		Short:   "Bring every configured tunnel and its forwards to the stored state",
		Args:    cobra.NoArgs,
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			if file != "" {
				if err := importFile(cmd, svc, file); err != nil {
					return err
				}
			}
			report := svc.Lifecycle.Apply(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("run "+report.RunID))
			fmt.Fprintln(cmd.OutOrStdout(), renderLines(report.String()))
			if !report.OK() {
				return errApplyFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "import tunnels from a YAML file first")
	return cmd
}

func newStartCmd() *cobra.Command {
	var recreate bool
	cmd := &cobra.Command{
		Use:     "start <tunnel>",
		Short:   "Set up one tunnel and start its forwards",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			report, err := svc.Lifecycle.Start(cmd.Context(), args[0], recreate)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderLines(report.String()))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&recreate, "recreate", false, "tear the tunnel down before setting it up")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stop <tunnel>",
		Short:   "Stop the forwards of one tunnel and tear it down",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			out, err := svc.Lifecycle.Stop(cmd.Context(), args[0])
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), renderLines(out))
			}
			return err
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [tunnel]",
		Short: "Show live state of one tunnel, or of all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				if names, err = svc.Store.List(); err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No tunnels configured"))
					return nil
				}
			}
			for i, name := range names {
				st, units, err := svc.Lifecycle.Status(cmd.Context(), name)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
				fmt.Fprintln(cmd.OutOrStdout(), renderForwards(units))
			}
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var (
		lines int
		unit  string
	)
	cmd := &cobra.Command{
		Use:   "logs [tunnel]",
		Short: "Show journal lines of the daemon and a tunnel's forwards",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			units := []string{unit}
			if unit == "" {
				var cfg *model.Tunnel
				if len(args) == 1 {
					if cfg, err = svc.Store.MustGet(args[0]); err != nil {
						return err
					}
				}
				units = service.Units(cfg)
			}
			for _, u := range units {
				fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("== "+u+" =="))
				fmt.Fprintln(cmd.OutOrStdout(), svc.Logs.Tail(cmd.Context(), u, lines))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", service.DefaultLogLines, "number of lines per unit")
	cmd.Flags().StringVarP(&unit, "unit", "u", "", "show only this unit")
	return cmd
}

func newPrereqCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "prereq",
		Short:   "Install iproute2 and socat and load the L2TP kernel modules",
		Args:    cobra.NoArgs,
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			host := model.NewTunnel("prereq")

			out, err := svc.Lifecycle.Tunnel(host).InstallPrerequisites(ctx)
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			if err != nil {
				return err
			}

			fwd := svc.Lifecycle.Forwards(host)
			if fwd.ToolInstalled(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "socat already installed")
				return nil
			}
			msg, err := fwd.InstallTool(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored tunnel as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			data, err := service.ExportTunnels(svc.Store)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return afero.WriteFile(afero.NewOsFs(), output, data, 0o600)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	return cmd
}

func newImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "import",
		Short:   "Create or update tunnels from a YAML file",
		Args:    cobra.NoArgs,
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			return importFile(cmd, svc, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "tunnel file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importFile(cmd *cobra.Command, svc *service.ServicesBundle, path string) error {
	file, err := service.LoadTunnelFile(afero.NewOsFs(), path)
	if err != nil {
		return err
	}
	lines, err := svc.Lifecycle.Import(cmd.Context(), file)
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return err
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the daemon: periodic apply, HTTP API and Telegram bot",
		Args:    cobra.NoArgs,
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := services(); err != nil {
				return err
			}
			if err := application.Start(); err != nil {
				application.Stop()
				return err
			}
			<-cmd.Context().Done()
			fmt.Fprintln(os.Stderr, "shutting down")
			application.Stop()
			return nil
		},
	}
}
