package cmd

import (
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/cli/cmd/utils"
	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/spf13/cobra"
)

func NewSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [file.png]",
		Short: "Save the last composited frame as a PNG (headless only)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path, err := filepath.Abs(utils.CanonicalPath(args[0]))
			if err != nil {
				log.Fatalf("Invalid path %q: %v", args[0], err)
			}
			if _, err := ipc.SendSnapshot(path); err != nil {
				log.Fatalf("Failed to send 'snapshot' command: %v", err)
			}
			log.Infof("Snapshot queued: %s", path)
		},
	}
}
