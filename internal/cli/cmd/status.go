package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/cli/cmd/utils"
	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get drmcomp status",
		Long:  `Returns the current state of the running compositor: scheduler state, frame counters and the output it drives.`,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := ipc.SendStatus()
			if err != nil {
				log.Errorf("Error sending command: %v", err)
				return
			}

			utils.PrintJSONColored(response)
		},
	}
}
