package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/igor04091968/sing-l2tp/app"
	"github.com/igor04091968/sing-l2tp/config"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/cobra"
)

var errNotRoot = errors.New("this command must be run as root")

var application *app.APP

var rootCmd = &cobra.Command{
	Use:           config.GetName(),
	Short:         "L2TPv3 tunnel and port forward manager",
	Version:       config.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		newApplyCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newPrereqCmd(),
		newExportCmd(),
		newImportCmd(),
		newServeCmd(),
		newTunnelCmd(),
		newForwardCmd(),
	)
}

// Execute runs the command line. Any error exits with status 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

// services initializes the app once per process.
func services() (*service.ServicesBundle, error) {
	if application == nil {
		a := app.NewApp()
		if err := a.Init(); err != nil {
			return nil, err
		}
		application = a
	}
	return application.GetServices(), nil
}

func requireRoot(*cobra.Command, []string) error {
	if os.Geteuid() != 0 {
		return errNotRoot
	}
	return nil
}
