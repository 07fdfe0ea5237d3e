package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/matjam/drmcomp/internal/cli/cmd/utils"
	"github.com/matjam/drmcomp/internal/hardware"
	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/matjam/drmcomp/internal/session"
	"github.com/matjam/drmcomp/internal/shell"
	"github.com/matjam/drmcomp/internal/wlserver"
	"github.com/spf13/viper"
)

// StartSession runs the compositor until it is stopped. Startup failures and
// device faults end the process.
func StartSession() {
	log.Infof("StartSession() started in PID: %d", os.Getpid())

	if os.Getenv("BACKGROUND_PROCESS") == "1" {
		setupRotatingLogger()
	}

	if _, err := ipc.SendStatus(); err == nil {
		log.Infof("drmcomp is already running, exiting")
		os.Exit(0)
	}

	// the display, the GPU context and the card all belong to this thread
	runtime.LockOSThread()

	display, err := wlserver.New()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := display.InitShm(); err != nil {
		log.Fatalf("%v", err)
	}

	sh := shell.New(shell.NewWindowMap())
	if err := display.InitCompositor(sh); err != nil {
		log.Fatalf("%v", err)
	}

	name := viper.GetString("socket_name")
	if name == "" {
		name, err = display.AddSocketAuto()
	} else {
		err = display.AddSocket(name)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Infof("Listening on socket: %s", name)

	cfg := utils.SessionConfig()

	var target session.Target
	if viper.GetBool("headless") {
		target, err = session.HeadlessTarget(viper.GetInt("headless_width"), viper.GetInt("headless_height"), cfg.Tick)
	} else {
		target, err = hardware.Open(viper.GetString("device"), display.Ptr(), viper.GetBool("hardware_accel"))
	}
	if err != nil {
		log.Fatalf("Failed to set up output: %v", err)
	}
	if bi, ok := target.Importer.(wlserver.BufferImporter); ok {
		display.SetBufferImporter(bi)
	}

	sess, err := session.New(cfg, display, sh, target)
	if err != nil {
		log.Fatalf("%v", err)
	}

	srv, err := ipc.Start(sess, ipc.SocketPath())
	if err != nil {
		log.Warnf("Control socket unavailable: %v", err)
	} else {
		log.Infof("Control socket: %s", srv.Path())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("Received %v", sig)
		if err := sess.EnqueueCommand(ipc.Command{Type: ipc.CommandStop}); err != nil {
			log.Warnf("%v", err)
		}
	}()

	runErr := sess.Run()

	signal.Stop(sigs)
	if srv != nil {
		if err := srv.Close(); err != nil {
			log.Debugf("close control socket: %v", err)
		}
	}
	// client buffers hold GPU images, so clients go before the renderer
	display.DestroyClients()
	sess.Close()
	display.Destroy()

	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
	log.Infof("drmcomp exited")
}

func setupRotatingLogger() {
	home := os.Getenv("HOME")
	logDir := filepath.Join(home, ".local", "share", "drmcomp")
	logPath := filepath.Join(logDir, "drmcomp.log")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("failed to create log directory: %v", err)
	}

	writer, err := rotatelogs.New(
		logPath+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationSize(10*1024*1024),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		log.Fatalf("failed to configure log rotation: %v", err)
	}

	log.SetOutput(writer)
	if !viper.GetBool("debug") {
		log.SetLevel(log.InfoLevel)
	}
}
