package cmd

import (
	"github.com/NeowayLabs/drm/mode"
	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/cli/cmd/utils"
	"github.com/matjam/drmcomp/internal/drm"
	"github.com/matjam/drmcomp/internal/hardware"
	"github.com/matjam/drmcomp/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type connectorInfo struct {
	ID         uint32   `json:"id"`
	Connection string   `json:"connection"`
	Encoders   []uint32 `json:"encoders"`
	Modes      []string `json:"modes"`
}

func connectionName(c uint8) string {
	switch c {
	case mode.Connected:
		return "connected"
	case mode.Disconnected:
		return "disconnected"
	}
	return "unknown"
}

func NewOutputsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "List connectors and the output drmcomp would drive",
		Long: `Lists the connectors of the DRM device and runs the output selection
without binding a renderer or setting a mode.`,
		Run: func(cmd *cobra.Command, args []string) {
			card, err := drm.OpenCard(viper.GetString("device"))
			if err != nil {
				log.Fatalf("%v", err)
			}
			defer card.Close()

			res, err := card.Resources()
			if err != nil {
				log.Fatalf("%v", err)
			}

			connectors := make([]connectorInfo, 0, len(res.Connectors))
			for _, id := range res.Connectors {
				conn, err := card.Connector(id)
				if err != nil {
					log.Warnf("connector %d: %v", id, err)
					continue
				}
				info := connectorInfo{
					ID:         conn.ID,
					Connection: connectionName(conn.Connection),
					Encoders:   conn.Encoders,
				}
				for _, m := range conn.Modes {
					info.Modes = append(info.Modes, output.ModeName(m))
				}
				connectors = append(connectors, info)
			}
			log.Infof("Connectors:")
			utils.PrintJSONColored(connectors)

			sel, err := output.Select(card)
			if err != nil {
				log.Fatalf("No usable output: %v", err)
			}
			log.Infof("Selected output:")
			utils.PrintJSONColored(hardware.OutputInfo(sel))
		},
	}
}
