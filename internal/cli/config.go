package cli

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/drm"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("drmcomp")
		viper.SetConfigType("toml")
		viper.AddConfigPath("$HOME/.config/drmcomp")
		viper.AddConfigPath("/etc/xdg/drmcomp")
	}

	SetDefaults()

	viper.SetEnvPrefix("drmcomp")
	viper.AutomaticEnv() // read environment variables that match

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		log.Debug("No config file found, using defaults")
		return
	}
	cobra.CheckErr(err)
}

// SetDefaults registers the default value of every setting.
func SetDefaults() {
	viper.SetDefault("device", drm.DefaultDevice)
	viper.SetDefault("tick_ms", int(session.DefaultTick/time.Millisecond))
	viper.SetDefault("background_color", []float64{
		float64(render.DefaultBackground.R),
		float64(render.DefaultBackground.G),
		float64(render.DefaultBackground.B),
		float64(render.DefaultBackground.A),
	})
	viper.SetDefault("socket_name", "")
	viper.SetDefault("control_socket", "")
	viper.SetDefault("hardware_accel", true)
	viper.SetDefault("headless", false)
	viper.SetDefault("headless_width", 1280)
	viper.SetDefault("headless_height", 720)
	viper.SetDefault("debug", false)
}
