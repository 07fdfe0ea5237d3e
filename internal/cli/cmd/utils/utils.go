package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/session"
	"github.com/spf13/viper"
	"github.com/tidwall/pretty"
)

func CanonicalPath(path string) string {
	if path == "" {
		return ""
	}

	if path == "~" {
		return os.Getenv("HOME")
	}

	if strings.HasPrefix(path, "~/") {
		homeDir := os.Getenv("HOME")
		return strings.Replace(path, "~", homeDir, 1)
	}

	return path
}

func PrintJSONColored(data interface{}) {
	j, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Errorf("Error marshalling JSON: %v", err)
		return
	}

	jPretty := pretty.Color(j, nil)
	log.Info(string(jPretty))
}

// DefaultConfigPath is where --installconfig writes the config file.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "drmcomp", "drmcomp.toml")
}

func InstallDefaultConfig() {
	configPath := DefaultConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		log.Warnf("Config file already exists at %v", configPath)
		return
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		log.Fatalf("Error creating config directory: %v", err)
	}

	if err := os.WriteFile(configPath, []byte(drmcomp.DefaultConfig), 0644); err != nil {
		log.Fatalf("Error writing config file: %v", err)
	}

	log.Infof("Installed default config file at %v", configPath)
}

// SessionConfig is the loop configuration from the resolved settings.
func SessionConfig() session.Config {
	tick := time.Duration(viper.GetInt("tick_ms")) * time.Millisecond
	if tick <= 0 {
		log.Warnf("invalid tick_ms %d, using %v", viper.GetInt("tick_ms"), session.DefaultTick)
		tick = session.DefaultTick
	}
	return session.Config{Tick: tick, Background: BackgroundColor()}
}

// BackgroundColor parses background_color, an RGB or RGBA list.
func BackgroundColor() render.Color {
	if !viper.IsSet("background_color") {
		return render.DefaultBackground
	}

	var c []float64
	if err := viper.UnmarshalKey("background_color", &c); err != nil || (len(c) != 3 && len(c) != 4) {
		log.Warnf("invalid background_color %v, using the default", viper.Get("background_color"))
		return render.DefaultBackground
	}
	col := render.Color{R: float32(c[0]), G: float32(c[1]), B: float32(c[2]), A: 1}
	if len(c) == 4 {
		col.A = float32(c[3])
	}
	return col
}
