package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/safing/scanguard/base/info"
	"github.com/safing/scanguard/base/log"
	"github.com/safing/scanguard/base/metrics"
	"github.com/safing/scanguard/cmds/cmdbase"
	"github.com/safing/scanguard/network/capture"
	"github.com/safing/scanguard/service"
	"github.com/safing/scanguard/service/configure"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "scanguard",
		Short: "Passive TCP port scan detection",
		Long: "scanguard watches TCP traffic on a network interface and alerts when a single\n" +
			"source contacts many distinct destination ports within a time window.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLive,
	}

	replayCmd = &cobra.Command{
		Use:   "replay <file.pcap>",
		Short: "Run the detection on a pcap or pcapng capture file",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}

	interfacesCmd = &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces available for capturing",
		Args:  cobra.NoArgs,
		RunE:  listInterfaces,
	}
)

// exitCode is set by commands that run the sensor.
var exitCode int

func init() {
	defaults := configure.Default()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.IntP("threshold", "t", defaults.Threshold, "distinct destination ports that trigger an alert")
	flags.IntP("window", "w", int(defaults.Window.Seconds()), "time window in seconds")
	flags.StringP("log-file", "l", "", "append alerts to this file")
	flags.Int("heartbeat", int(defaults.Heartbeat.Seconds()), "heartbeat interval in seconds")
	flags.Bool("audio", false, "play a sound on alerts")
	flags.String("audio-file", "", "sound file to play")
	flags.String("audio-command", "", "command that plays the audio file, eg. paplay")
	flags.Duration("audio-cooldown", defaults.AudioCooldown.Std(), "minimum time between two sounds")
	flags.Bool("notify", false, "show desktop notifications")
	flags.String("journal", "", "record alerts in this SQLite database")
	flags.String("metrics-listen", "", "serve metrics on this address, eg. 127.0.0.1:9109")
	flags.String("metrics-push", "", "push metrics to this URL every minute")
	flags.String("log", defaults.LogLevel, "log level: trace, debug, info, warning, error, critical")
	flags.Bool("log-stdout", defaults.LogToStdout, "log to the console instead of log-dir")
	flags.String("log-dir", "", "write logs to files in this directory")

	live := rootCmd.Flags()
	live.StringP("interface", "i", "", "interface or name pattern, eg. \"en*\", to capture on (default: first interface that is up)")
	live.String("filter", defaults.Filter, "BPF filter")
	live.Int32("snaplen", defaults.SnapLen, "capture snap length")
	live.Bool("promiscuous", defaults.Promiscuous, "capture in promiscuous mode")
	live.Duration("read-timeout", defaults.ReadTimeout.Std(), "capture read timeout")

	rootCmd.AddCommand(
		cmdbase.VersionCmd,
		interfacesCmd,
		replayCmd,
	)
}

func main() {
	// Set information.
	info.Set("scanguard", "", "GPLv3")

	// Configure metrics.
	_ = metrics.SetNamespace("scanguard")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 2
		}
	}
	os.Exit(exitCode)
}

func loadConfig(cmd *cobra.Command) (*configure.Config, error) {
	cfg, err := configure.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	// Start logging.
	// Note: Must be started before the instance, so that modules use the right logger.
	if err := log.Start(cfg.LogLevel, cfg.LogToStdout, cfg.LogDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runLive(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Shutdown()

	iface, err := capture.ResolveInterface(cfg.Interface)
	if err != nil {
		exitCode = 1
		return err
	}

	source, err := capture.OpenLive(capture.LiveOptions{
		Interface:   iface,
		SnapLen:     cfg.SnapLen,
		Promiscuous: cfg.Promiscuous,
		ReadTimeout: cfg.ReadTimeout.Std(),
		Filter:      cfg.Filter,
	})
	if err != nil {
		exitCode = 1
		return err
	}

	return run(cfg, source, false)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Shutdown()

	source, err := capture.OpenFile(args[0])
	if err != nil {
		exitCode = 1
		return err
	}

	return run(cfg, source, true)
}

func run(cfg *configure.Config, source service.Source, replay bool) error {
	instance, err := service.New(cfg, source, service.Options{Replay: replay})
	if err != nil {
		_ = source.Close()
		exitCode = 1
		return fmt.Errorf("error creating an instance: %w", err)
	}

	exitCode = cmdbase.RunService(instance)
	return nil
}

func listInterfaces(cmd *cobra.Command, _ []string) error {
	ifaces, err := capture.ListInterfaces()
	if err != nil {
		exitCode = 1
		return err
	}
	defaultIface, _ := capture.DefaultInterface()

	out := cmd.OutOrStdout()
	for _, iface := range ifaces {
		marker := " "
		if iface.Name == defaultIface {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s", marker, iface.Name)
		if iface.Description != "" {
			fmt.Fprintf(out, " (%s)", iface.Description)
		}
		for _, addr := range iface.Addresses {
			fmt.Fprintf(out, " %s", addr)
		}
		fmt.Fprintln(out)
	}
	return nil
}
