package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/inovacc/reposync/internal/application"
	"github.com/inovacc/reposync/internal/model"
)

const serviceStopTimeout = 30 * time.Second

var (
	serviceStart     bool
	serviceStop      bool
	serviceInstall   bool
	serviceUninstall bool
	serviceStatus    bool
	serviceRun       bool
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the sync loop as a system service",
	Long: `Install, uninstall, start, stop, or check the status of the sync loop as a system service.

On Windows, this creates/manages a Windows Service.
On Linux/macOS, this creates/manages a systemd/launchd service.
The service manager runs "reposync service --run".`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.Flags().BoolVar(&serviceStart, "start", false, "Start the service")
	serviceCmd.Flags().BoolVar(&serviceStop, "stop", false, "Stop the service")
	serviceCmd.Flags().BoolVar(&serviceInstall, "install", false, "Install the sync loop as a system service")
	serviceCmd.Flags().BoolVar(&serviceUninstall, "uninstall", false, "Uninstall the system service")
	serviceCmd.Flags().BoolVar(&serviceStatus, "status", false, "Check the service status")
	serviceCmd.Flags().BoolVar(&serviceRun, "run", false, "Run under the service manager")
}

// program implements service.Interface around a daemon
type program struct {
	cfg    model.Config
	logger *slog.Logger

	d      *daemon
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	d, err := newDaemon(p.cfg, daemonOptions{Replace: true, KillSubprocesses: true, Logger: p.logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.d = d
	p.cancel = cancel
	p.done = make(chan error, 1)

	// Start should not block. Do the actual work async.
	go func() {
		err := d.run(ctx)
		_ = d.close()
		p.done <- err
	}()

	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.d == nil {
		return nil
	}

	p.d.stop()

	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		p.cancel()
		return fmt.Errorf("sync loop did not stop within %s", serviceStopTimeout)
	}
}

func runService(cmd *cobra.Command, args []string) error {
	// Count how many flags are set
	flagCount := 0
	for _, set := range []bool{serviceStart, serviceStop, serviceInstall, serviceUninstall, serviceStatus, serviceRun} {
		if set {
			flagCount++
		}
	}

	if flagCount == 0 {
		return fmt.Errorf("please specify one of: --start, --stop, --install, --uninstall, --status, --run")
	}

	if flagCount > 1 {
		return fmt.Errorf("please specify only one operation at a time")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	arguments := []string{"service", "--run"}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		arguments = append(arguments, "--config", path)
	}

	svcConfig := &service.Config{
		Name:        application.AppName,
		DisplayName: "Reposync",
		Description: "Keeps local repository checkouts synced and their applications running",
		Arguments:   arguments,
	}

	prg := &program{cfg: cfg, logger: slog.Default()}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	// Handle the requested operation
	switch {
	case serviceRun:
		return s.Run()
	case serviceInstall:
		if err := s.Install(); err != nil {
			return fmt.Errorf("failed to install service: %w", err)
		}

		fmt.Println("Service installed. Start it with:")
		fmt.Printf("  %s service --start\n", application.AppName)
	case serviceUninstall:
		// Try to stop first
		_ = s.Stop()

		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall service: %w", err)
		}

		fmt.Println("Service uninstalled.")
	case serviceStart:
		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}

		fmt.Println("Service started.")
	case serviceStop:
		if err := s.Stop(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}

		fmt.Println("Service stopped.")
	case serviceStatus:
		return statusService(s)
	}

	return nil
}

func statusService(s service.Service) error {
	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("failed to get service status: %w", err)
	}

	fmt.Printf("Service Status: ")
	switch status {
	case service.StatusRunning:
		fmt.Println("Running")
	case service.StatusStopped:
		fmt.Println("Stopped")
	case service.StatusUnknown:
		fmt.Println("Unknown")
	default:
		fmt.Printf("%v\n", status)
	}

	return nil
}
