package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-loopstation/notes"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [port substring]",
	Short: "Print incoming MIDI notes from an input port",
	Long: `Listens on a MIDI input port and prints note events as they arrive,
useful for checking that a keyboard is wired up before starting a session.
With no argument it picks the first input port.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer gomidi.CloseDriver()

		ins := gomidi.GetInPorts()
		if len(ins) == 0 {
			return fmt.Errorf("no MIDI input ports")
		}

		port := ins[0]
		if len(args) > 0 {
			port = nil
			want := strings.ToLower(args[0])
			for _, p := range ins {
				if strings.Contains(strings.ToLower(p.String()), want) {
					port = p
					break
				}
			}
			if port == nil {
				return fmt.Errorf("no input port matching %q", args[0])
			}
		}

		start := time.Now()
		stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, _ int32) {
			var ch, note, vel uint8
			t := time.Since(start).Seconds()
			switch {
			case msg.GetNoteOn(&ch, &note, &vel) && vel > 0:
				fmt.Printf("%8.3f  on   %-4s ch=%d vel=%d\n", t, notes.Name(note), ch, vel)
			case msg.GetNoteOff(&ch, &note, &vel), msg.GetNoteOn(&ch, &note, &vel):
				fmt.Printf("%8.3f  off  %-4s ch=%d\n", t, notes.Name(note), ch)
			}
		})
		if err != nil {
			return fmt.Errorf("listen on %s: %w", port.String(), err)
		}
		defer stop()

		fmt.Printf("Listening on %s (Ctrl-C to quit)\n", port.String())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
