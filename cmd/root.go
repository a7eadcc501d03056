package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-loopstation/debug"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "loopstation",
	Short: "Terminal live-looping instrument",
	Long: "go-loopstation is a terminal live-looping instrument: a beat clock,\n" +
		"a multi-slot loop recorder, an arpeggiator and a chord-sequence player,\n" +
		"all phase-locked to one clock and played out over MIDI.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debugFlag {
			if err := debug.Enable(); err != nil {
				return fmt.Errorf("enable debug log: %w", err)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare invocation plays.
		return runPlay(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log to "+debug.Path())
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
