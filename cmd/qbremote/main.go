package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("qbremote %s\n", formatVersion())
			if buildTime != "" {
				fmt.Printf("  Build: %s\n", buildTime)
			}
			fmt.Printf("  Go: %s\n", runtime.Version())
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "qbremote",
		Short: "Chat-bot remote control for qBittorrent",
		Long: "qbremote bridges qBittorrent instances to chat platforms.\n" +
			"Users drive paginated button menus to inspect transfer state,\n" +
			"pick downloaders and read version info, all inside the chat.",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
