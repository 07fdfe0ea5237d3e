/*
Copyright © 2025 Nathan Ollerenshaw <chrome@stupendous.net>
*/
package cli

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp"
	"github.com/matjam/drmcomp/internal/cli/cmd"
	"github.com/matjam/drmcomp/internal/cli/cmd/utils"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "drmcomp",
	Short: "A compositor drawing straight to a DRM display",
	Long: `drmcomp is a Wayland compositor that drives a display through kernel
mode-setting, composites client surfaces with OpenGL ES and presents
every frame with a page flip.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
			log.SetReportCaller(true)
		}
	},
	Run: func(c *cobra.Command, args []string) {
		if v, err := c.Flags().GetBool("show-config"); err == nil && v {
			log.Infof("Using config file: %v", viper.ConfigFileUsed())
			log.Infof("All settings:")
			utils.PrintJSONColored(viper.AllSettings())
			return
		}

		babyBlue := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
		yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
		green := lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
		if v, err := c.Flags().GetBool("version"); err == nil && v {
			log.Infof("%v version %v © 2025 %v",
				babyBlue.Render("drmcomp "),
				green.Render(strings.Trim(drmcomp.Version, "\n\r ")),
				yellow.Render("Nathan Ollerenshaw"))
			return
		}

		if v, err := c.Flags().GetBool("installconfig"); err == nil && v {
			utils.InstallDefaultConfig()
			return
		}

		if v, err := c.Flags().GetBool("background"); err == nil && v {
			runInBackground()
			return
		}

		cmd.StartSession()
	},
}

func runInBackground() {
	ctx := &daemon.Context{
		WorkDir: "/",
		Umask:   027,
		Env:     append(os.Environ(), "BACKGROUND_PROCESS=1"),
	}

	child, err := ctx.Reborn()
	if err != nil {
		log.Fatalf("Failed to start in the background: %v", err)
	}
	if child != nil {
		log.Infof("drmcomp started in the background (PID %d)", child.Pid)
		return
	}
	defer ctx.Release()

	cmd.StartSession()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitConfig)

	RegisterFlags(rootCmd)

	rootCmd.AddCommand(
		cmd.NewStatusCmd(),
		cmd.NewStopCmd(),
		cmd.NewOutputsCmd(),
		cmd.NewSnapshotCmd(),
		cmd.NewGenManCmd(rootCmd),
	)
}
