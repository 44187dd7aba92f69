// Command pcmbridge-demo drives one capture or playback bridge against a
// synthetic host loop, printing stats at a fixed interval. It exists to
// exercise the core outside of a real plugin/CLI shell (spec.md §1 calls
// those shells out of scope).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	bridge "github.com/intuitionamiga/pcmbridge/src"
)

func main() {
	deviceID := pflag.StringP("device", "d", "default", "device identifier to open")
	direction := pflag.StringP("direction", "D", "playback", "capture or playback")
	rate := pflag.Uint32P("rate", "r", 48000, "host sample rate")
	blockSize := pflag.IntP("block", "b", 256, "host block size, frames")
	channels := pflag.IntP("channels", "c", 2, "channel count")
	backendName := pflag.String("backend", "alsa", "back-end to drive: alsa, mmap, or oto (headless playback test sink)")
	mmapPath := pflag.String("mmap-path", "/proc/uac2p", "MMAP gadget device path (backend=mmap only)")
	seconds := pflag.IntP("seconds", "s", 0, "stop after N seconds (0 = run until interrupted)")
	help := pflag.Bool("help", false, "display help text")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pcmbridge-demo [options]\n\nDrives one pcmbridge device against a synthetic host loop.\n\nOptions:\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	dir := bridge.Playback
	if *direction == "capture" {
		dir = bridge.Capture
	}

	cfg := bridge.DeviceConfig{
		DeviceID:  *deviceID,
		Direction: dir,
		N:         *blockSize,
		HostRate:  *rate,
		Channels:  *channels,
	}
	tunables := bridge.DefaultTunables()

	var mode bridge.Mode
	var factory bridge.BackendFactory
	switch *backendName {
	case "alsa":
		mode = bridge.ModeAsync
		factory = bridge.NewALSABackend
	case "mmap":
		mode = bridge.ModeSync
		factory = func() bridge.Backend { return bridge.NewMMAPBackend(*mmapPath) }
	case "oto":
		mode = bridge.ModeSync
		factory = bridge.NewOtoBackend
	default:
		fmt.Fprintf(os.Stderr, "pcmbridge-demo: unknown backend %q (want alsa, mmap, or oto)\n", *backendName)
		os.Exit(2)
	}

	br := bridge.NewBridge(cfg, tunables, mode, factory)
	defer br.Close()

	bufs := make([][]float32, cfg.Channels)
	for c := range bufs {
		bufs[c] = make([]float32, cfg.N)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *seconds > 0 {
		deadline = time.After(time.Duration(*seconds) * time.Second)
	}

	blockPeriod := time.Duration(float64(cfg.N) / float64(cfg.HostRate) * float64(time.Second))
	ticker := time.NewTicker(blockPeriod)
	defer ticker.Stop()

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	fmt.Printf("pcmbridge-demo: device=%s direction=%s rate=%d block=%d channels=%d backend=%s\n",
		cfg.DeviceID, cfg.Direction, cfg.HostRate, cfg.N, cfg.Channels, *backendName)

	for {
		select {
		case <-sigCh:
			fmt.Println("pcmbridge-demo: interrupted")
			return
		case <-deadline:
			fmt.Println("pcmbridge-demo: time limit reached")
			return
		case <-ticker.C:
			br.Run(bufs, cfg.N)
		case <-statsTicker.C:
			s := br.Stats()
			fmt.Printf("state=%s channels=%d period=%d full_buffer=%d ratio_active=%.6f ratio_filtered=%.6f\n",
				s.State, s.NumChannels, s.PeriodSize, s.FullBufferSize, s.RatioActive, s.RatioFiltered)
		}
	}
}
