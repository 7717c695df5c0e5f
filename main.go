package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"mediassist/api"
	"mediassist/audio"
	"mediassist/config"
	"mediassist/cue"
	"mediassist/doctor"
	"mediassist/fault"
	"mediassist/hotkey"
	"mediassist/log"
	"mediassist/recording"
	"mediassist/shutdown"
	"mediassist/transcriber"
)

var version = "dev"

func run() int {
	configFlag := flag.String("config", "", "config file (default: $MEDIASSIST_CONFIG, then ./mediassist.yaml)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	debugFlag := flag.Bool("debug", false, "Log debug events")
	backendFlag := flag.String("backend", "", "Backend base URL (overrides backend.baseUrl)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.String("test", "", "Headless mode: replay this WAV file as the microphone, commands on stdin")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("mediassist %s\n", version)
		return 0
	}

	logDir, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logDir)
	log.SetDebug(*debugFlag)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	openCrashLog()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *backendFlag != "" {
		cfg.Backend.BaseURL = strings.TrimRight(*backendFlag, "/")
	}
	if *deviceFlag != "" {
		cfg.Recording.Device = *deviceFlag
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	tr, err := transcriber.New(transcriber.Options{
		Provider: cfg.Transcription.Provider,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		BaseURL:  cfg.Transcription.BaseURL,
		Timeout:  cfg.Transcription.Timeout,
		FakeText: cfg.Transcription.FakeText,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	client := api.New(cfg.Backend.BaseURL, cfg.Backend.UserID, cfg.Backend.Timeout)
	log.SessionStart(cfg.Backend.BaseURL, tr.Name())

	if *testFlag != "" {
		return runTestMode(ctx, cfg, client, tr, *testFlag)
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: audio init failed: %v\n", err)
		return 1
	}
	defer audioCtx.Close()

	if *setupFlag {
		dev, err := audio.SelectDevice(audioCtx)
		if err != nil {
			if !errors.Is(err, audio.ErrSelectionAborted) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			return 1
		}
		if dev != nil {
			cfg.Recording.Device = dev.Name
			fmt.Printf("Using %q. Set recording.device in your config to keep it.\n", dev.Name)
		}
	}

	dev, err := audio.FindDevice(audioCtx, cfg.Recording.Device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	mic := audio.NewMicrophone(audioCtx, dev)
	hk := hotkey.New()

	if *doctorFlag {
		return doctor.Run(ctx, os.Stdout, []doctor.Check{
			doctor.Backend(client),
			doctor.Hotkey(hk, hotkey.Diagnose, 15*time.Second),
			doctor.Microphone(mic, tr, 3*time.Second),
			doctor.Clipboard(),
		})
	}

	return runTUI(ctx, cfg, client, mic, dev, tr, hk)
}

func runTUI(ctx context.Context, cfg *config.Config, client *api.Client, mic *audio.Microphone, dev *audio.DeviceInfo, tr transcriber.Transcriber, hk hotkey.Hotkey) int {
	if err := hk.Register(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not register Ctrl+Space: %v\n", err)
		return 1
	}
	defer hk.Unregister()

	cue.Enable(true)
	display := &tuiDisplay{}
	a := newApp(ctx, cfg, client, microphone{mic}, tr, hk.Modifier(), display)
	defer a.close()

	p := tea.NewProgram(newModel(ctx, a, deviceLabel(dev), cfg.Backend.BaseURL), tea.WithAltScreen(), tea.WithContext(ctx))
	display.p = p

	if w, ok := tr.(interface{ Warm() time.Duration }); ok {
		go func() { log.Debugf("%s connection warmed (tls %s)", tr.Name(), w.Warm()) }()
	}
	go listen(ctx, hk, a.recorder, nil)
	go func() {
		if _, err := a.refreshReports(ctx); err != nil {
			log.Warnf("load reports: %v", err)
			display.Notice(LevelError, "Could not load medical reports: "+fault.Message(err))
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// listen feeds push-to-talk edges to the recorder until ctx is done. A
// release is read only after its press has been fully handled, so it never
// races the device acquisition. after, when set, is called once per press
// with the session's completion channel (nil when no session started).
func listen(ctx context.Context, hk hotkey.Hotkey, rec *recording.Controller, after func(done <-chan struct{})) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
		}
		err := rec.OnPressStart(ctx)
		if err != nil {
			log.Warnf("press ignored: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-hk.Keyup():
		}
		var done <-chan struct{}
		if err == nil {
			done = rec.OnPressEnd()
		}
		if after != nil {
			after(done)
		}
	}
}

func deviceLabel(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return dev.Name + " (BT!)"
	}
	return dev.Name
}

func openCrashLog() {
	f, err := os.OpenFile(filepath.Join(log.Dir(), "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}
