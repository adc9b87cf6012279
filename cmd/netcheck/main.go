// netcheck checks Kaillera lobby servers and peer-to-peer hosts for
// reachability. It runs one-off checks from the command line or serves
// them over HTTP for web front ends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/util"
)

// Build information set with -ldflags.
var (
	commit = "none"
	date   = "unknown"
)

const banner = `
            _       _               _
 _ __   ___| |_ ___| |__   ___  ___| | __
| '_ \ / _ \ __/ __| '_ \ / _ \/ __| |/ /
| | | |  __/ || (__| | | |  __/ (__|   <
|_| |_|\___|\__\___|_| |_|\___|\___|_|\_\
`

type globalFlags struct {
	configDir string
	logLevel  string
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "netcheck",
		Short: "Kaillera server and P2P connectivity checker",
		Long: `netcheck speaks the Kaillera lobby and peer-to-peer protocols to
check whether a server or a player's P2P host is reachable.

Run single checks from the terminal, or start the HTTP service that
web front ends call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configDir, "config", "c", config.DefaultConfigDir, "configuration directory")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(
		serveCmd(flags),
		pingCmd(flags),
		joinCmd(flags),
		p2pCmd(flags),
		monitorCmd(flags),
		configureCmd(flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and configures logging from it.
// One-shot commands log to the console only.
func loadConfig(flags *globalFlags, console bool) (*config.Config, error) {
	boot := util.DefaultLogConfig()
	boot.Level = "warn"
	boot.Directory = ""
	if err := util.InitLogger(boot); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.configDir)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging.LogConfig()
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if console {
		logCfg.Directory = ""
		logCfg.Console = true
	}
	if err := util.InitLogger(logCfg); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	return cfg, nil
}
