package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	"scribe/audio"
	"scribe/beep"
	"scribe/clipboard"
	"scribe/config"
	"scribe/control"
	"scribe/format"
	"scribe/hotkey"
	"scribe/log"
	"scribe/notify"
	"scribe/session"
	"scribe/shutdown"
	"scribe/store"
	"scribe/transcriber"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

// storage is what the panel needs from a store backend.
type storage interface {
	store.KV
	store.History
}

func run() {
	if runSubcommand() {
		return
	}

	configFlag := flag.String("config", "", "config file path (default: "+config.DefaultPath()+")")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	langFlag := flag.String("lang", "", "Recognition language (BCP 47, e.g. ru-RU, en-US)")
	punctFlag := flag.String("punctuation", "", "Punctuation level: off, medium or high")
	engineFlag := flag.String("engine", "", "Recognition engine: deepgram or fake")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven); takes a recognition script")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("scribe %s\n", version)
		return
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg, err := config.Load(*configFlag, func(c *config.Config) {
		if *langFlag != "" {
			c.Language = *langFlag
		}
		if *punctFlag != "" {
			c.Punctuation = *punctFlag
		}
		if *engineFlag != "" {
			c.Engine = *engineFlag
		}
		if *deviceFlag != "" {
			c.Device = *deviceFlag
		}
		if *logPathFlag != "" {
			c.Log.Dir = *logPathFlag
		}
		if *testFlag {
			c.Engine = "fake"
			c.Store.Mode = "memory"
			c.Hotkey = false
			c.Control.Enabled = false
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logPath, err := log.ResolveDir(cfg.Log.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(log.Rotation{MaxSizeMB: cfg.Log.MaxSizeMB, MaxBackups: cfg.Log.MaxBackups}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *testFlag {
		if flag.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Error: -test needs a recognition script")
			os.Exit(2)
		}
		if err := runTestMode(cfg, flag.Arg(0), os.Stdin, os.Stdout); err != nil {
			log.Errorf("test mode: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runPanel(cfg, explicit, *setupFlag); err != nil {
		if errors.Is(err, audio.ErrSelectionCancelled) {
			return
		}
		log.Errorf("fatal: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Close()
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: scribe [flags]\n       scribe <command> [flags]\n\n")
	fmt.Fprintf(out, "Commands (talk to a running panel):\n")
	fmt.Fprintf(out, "  start, stop, toggle, status, copy, clear, close\n\n")
	fmt.Fprintf(out, "Local commands:\n")
	fmt.Fprintf(out, "  history   show recent dictations\n")
	fmt.Fprintf(out, "  devices   list microphones\n")
	fmt.Fprintf(out, "  doctor    run system diagnostics\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flag.PrintDefaults()
}

// runPanel wires the session controller to its collaborators and runs the
// terminal panel until the user quits or a signal arrives.
func runPanel(cfg config.Config, explicit map[string]bool, setup bool) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 5*time.Second)
	saved, err := store.Load(loadCtx, db)
	cancelLoad()
	if err != nil {
		log.Warnf("settings load failed: %v", err)
	}
	draft := restoreSettings(&cfg, saved, explicit)

	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer actx.Close()

	device, err := pickDevice(actx, cfg.Device, setup)
	if err != nil {
		return err
	}
	log.Info("capture_device: " + device.String())

	rec, err := newRecognizer(cfg, actx, device)
	if err != nil {
		return err
	}

	persister := store.NewPersister(db, cfg.Timing.DraftDebounce())
	defer persister.Close()

	var player beep.Player = beep.Silent{}
	if cfg.Sounds {
		player = beep.New()
	}
	var notifier notify.Notifier = notify.Silent{}
	if cfg.Notifications {
		notifier = notify.Desktop{}
	}

	pump := newSnapshotPump()
	ctrl := session.New(session.Options{
		Recognizer:   rec,
		Microphone:   audio.NewMicrophone(actx, device),
		Clipboard:    clipboard.System{},
		Listener:     cueSink{player: player, notifier: notifier},
		Persister:    persister,
		History:      db,
		Language:     cfg.Language,
		Level:        cfg.Level(),
		Text:         draft,
		SettleDelay:  cfg.Timing.SettleDelay(),
		RestartDelay: cfg.Timing.RestartDelay(),
		TickInterval: cfg.Timing.TickInterval(),
		StatusTTL:    cfg.Timing.StatusTTL(),
		ErrorTTL:     cfg.Timing.ErrorTTL(),
		StopGrace:    cfg.Timing.StopGrace(),
		OnChange:     pump.Offer,
	})

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(ctx) })

	if cfg.Control.Enabled {
		srv, err := control.Listen(cfg.Control.Socket, controlHandler(ctrl, cancel))
		if err != nil {
			log.Warnf("control socket disabled: %v", err)
		} else {
			log.Infof("control socket: %s", srv.Path())
			g.Go(func() error { return srv.Serve(ctx) })
		}
	}

	hotkeyOn := false
	if cfg.Hotkey {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey register error: %v", err)
		} else {
			hotkeyOn = true
			defer hk.Unregister()
			g.Go(func() error {
				hotkey.Watch(ctx, hk, cfg.Timing.HotkeyHold(), ctrl)
				return nil
			})
		}
	}

	deviceName := "system default"
	if device != nil {
		deviceName = device.Name
		if audio.IsBluetooth(device.Name) {
			deviceName += " (BT!)"
		}
	}
	p := NewTUIProgram(newPanelModel(ctrl, ctrl.Snapshot(), cfg.Languages, deviceName, hotkeyOn), tea.WithContext(ctx))
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	g.Go(func() error { return pump.Run(ctx, sendToTUI) })
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	s := ctrl.Snapshot()
	log.Infof("panel closed: state=%s words=%d", s.State, format.CountWords(s.Text))
	return err
}

func openStore(cfg config.Config) (storage, error) {
	if cfg.Store.Mode == "memory" {
		return store.NewMemory(), nil
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return db, nil
}

// restoreSettings applies saved settings over the configured defaults and
// returns the saved draft. Settings given as flags win over saved ones.
func restoreSettings(cfg *config.Config, saved store.Settings, explicit map[string]bool) string {
	if saved.Language != "" && !explicit["lang"] {
		if err := config.ValidateLanguage(saved.Language); err != nil {
			log.Warnf("ignoring saved language: %v", err)
		} else {
			cfg.Language = saved.Language
			if !slices.Contains(cfg.Languages, saved.Language) {
				cfg.Languages = append(cfg.Languages, saved.Language)
			}
		}
	}
	if saved.PunctuationLevel != "" && !explicit["punctuation"] {
		if _, err := format.ParseLevel(saved.PunctuationLevel); err != nil {
			log.Warnf("ignoring saved punctuation level: %v", err)
		} else {
			cfg.Punctuation = saved.PunctuationLevel
		}
	}
	return saved.TextDraft
}

func pickDevice(actx audio.Context, name string, setup bool) (*audio.DeviceInfo, error) {
	if setup {
		return audio.SelectDevice(actx)
	}
	return audio.FindDevice(actx, name)
}

func newRecognizer(cfg config.Config, actx audio.Context, device *audio.DeviceInfo) (transcriber.Recognizer, error) {
	if cfg.Engine == "fake" {
		return transcriber.NewFake(), nil
	}
	opts := []transcriber.DeepgramOption{
		transcriber.WithModel(cfg.Deepgram.Model),
		transcriber.WithDevice(device),
		transcriber.WithNoSpeechTimeout(cfg.Timing.NoSpeech()),
	}
	if cfg.Deepgram.Endpoint != "" {
		opts = append(opts, transcriber.WithEndpoint(cfg.Deepgram.Endpoint))
	}
	return transcriber.NewDeepgram(cfg.Deepgram.APIKey, actx, opts...)
}
