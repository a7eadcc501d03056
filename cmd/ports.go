package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI input and output ports",
	Run: func(cmd *cobra.Command, args []string) {
		defer gomidi.CloseDriver()

		fmt.Println("Inputs:")
		ins := gomidi.GetInPorts()
		if len(ins) == 0 {
			fmt.Println("  (none)")
		}
		for _, p := range ins {
			fmt.Printf("  %s\n", p.String())
		}

		fmt.Println("Outputs:")
		outs := gomidi.GetOutPorts()
		if len(outs) == 0 {
			fmt.Println("  (none)")
		}
		for _, p := range outs {
			fmt.Printf("  %s\n", p.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
