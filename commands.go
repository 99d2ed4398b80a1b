package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"scribe/audio"
	"scribe/config"
	"scribe/control"
	"scribe/doctor"
	"scribe/format"
	"scribe/session"
	"scribe/shutdown"
	"scribe/store"
)

var subcommands = map[string]func(args []string, stdout io.Writer) error{
	control.CmdStart:  clientCommand(control.CmdStart),
	control.CmdStop:   clientCommand(control.CmdStop),
	control.CmdToggle: clientCommand(control.CmdToggle),
	control.CmdStatus: clientCommand(control.CmdStatus),
	control.CmdCopy:   clientCommand(control.CmdCopy),
	control.CmdClear:  clientCommand(control.CmdClear),
	control.CmdClose:  clientCommand(control.CmdClose),
	"history":         historyCommand,
	"devices":         devicesCommand,
	"doctor":          doctorCommand,
}

// clientCommand sends name to the running panel over the control socket.
func clientCommand(name string) func([]string, io.Writer) error {
	return func(args []string, stdout io.Writer) error {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		configPath := fs.String("config", "", "config file path")
		lang := fs.String("lang", "", "recognition language for start/toggle (BCP 47)")
		asJSON := fs.Bool("json", false, "print the raw response")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *lang != "" {
			if err := config.ValidateLanguage(*lang); err != nil {
				return err
			}
		}
		cfg, err := config.Read(*configPath)
		if err != nil {
			return err
		}
		resp, err := control.Do(cfg.Control.Socket, control.Command{Cmd: name, Language: *lang})
		if err != nil {
			return fmt.Errorf("is scribe running? %w", err)
		}
		if *asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		if !resp.OK {
			return errors.New(resp.Error)
		}
		printResponse(stdout, name, resp)
		return nil
	}
}

func printResponse(w io.Writer, name string, resp control.Response) {
	line := resp.State
	if resp.Elapsed != "" {
		line += " " + resp.Elapsed
	}
	fmt.Fprintf(w, "%s  [%s, punctuation %s]\n", line, resp.Language, resp.Level)
	if resp.Status != "" {
		fmt.Fprintln(w, resp.Status)
	}
	if name == control.CmdStatus && resp.Text != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, resp.Text)
	}
}

const closeDelay = 100 * time.Millisecond

// controlHandler maps control commands onto the controller. Every reply
// carries the state after the command has been applied.
func controlHandler(ctrl *session.Controller, quit func()) control.Handler {
	return control.HandlerFunc(func(ctx context.Context, cmd control.Command) control.Response {
		switch cmd.Cmd {
		case control.CmdStart, control.CmdToggle:
			if cmd.Language != "" {
				if err := config.ValidateLanguage(cmd.Language); err != nil {
					return control.Response{Error: err.Error()}
				}
				ctrl.SetLanguage(cmd.Language)
			}
			if cmd.Cmd == control.CmdStart {
				ctrl.Start()
			} else {
				ctrl.Toggle()
			}
		case control.CmdStop:
			ctrl.Stop()
		case control.CmdCopy:
			ctrl.Copy()
		case control.CmdClear:
			ctrl.Clear()
		case control.CmdStatus:
		case control.CmdClose:
			// the connection closes with the context, so the reply goes first
			time.AfterFunc(closeDelay, quit)
			return snapshotResponse(ctrl.Snapshot())
		default:
			return control.Response{Error: fmt.Sprintf("unknown command %q", cmd.Cmd)}
		}
		if err := ctrl.Sync(ctx); err != nil {
			return control.Response{Error: err.Error()}
		}
		return snapshotResponse(ctrl.Snapshot())
	})
}

func snapshotResponse(s session.Snapshot) control.Response {
	resp := control.Response{
		OK:       true,
		State:    s.State.String(),
		Language: s.Language,
		Level:    s.Level.String(),
		Status:   s.Status.Text,
		Text:     s.Text,
	}
	if s.State == session.StateRecording || s.State == session.StateStopping {
		resp.Elapsed = format.FormatElapsed(s.Elapsed)
	}
	return resp
}

// historyCommand prints recent dictations from the local store.
func historyCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	n := fs.Int("n", 10, "number of dictations to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Read(*configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Mode != "sqlite" {
		return fmt.Errorf("history needs the sqlite store (store.mode is %q)", cfg.Store.Mode)
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	items, err := db.Recent(ctx, *n)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "No dictations yet")
		return nil
	}
	for _, t := range items {
		fmt.Fprintf(stdout, "%s  %s  %s  %d words\n",
			t.StartedAt.Local().Format("2006-01-02 15:04"), t.Language,
			format.FormatElapsed(t.EndedAt.Sub(t.StartedAt)), format.CountWords(t.Text))
		fmt.Fprintf(stdout, "  %s\n", strings.ReplaceAll(t.Text, "\n", "\n  "))
	}
	return nil
}

// devicesCommand lists capture devices usable with -device.
func devicesCommand(_ []string, stdout io.Writer) error {
	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer actx.Close()
	devices, err := actx.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		suffix := ""
		if audio.IsBluetooth(d.Name) {
			suffix = "  (headset: recognition may degrade)"
		}
		fmt.Fprintf(stdout, "%s%s\n", d.Name, suffix)
	}
	return nil
}

// doctorCommand runs the system diagnostics.
func doctorCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	interactive := fs.Bool("interactive", false, "wait for the hotkey to be pressed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Read(*configPath)
	if err != nil {
		return err
	}
	checks := append([]doctor.Check{{
		Name: "Configuration",
		Run: func(context.Context) (string, error) {
			if _, err := config.Load(*configPath); err != nil {
				return "", err
			}
			return fmt.Sprintf("engine %s, language %s, punctuation %s", cfg.Engine, cfg.Language, cfg.Punctuation), nil
		},
	}}, doctor.Checks(cfg, *interactive)...)

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	if doctor.Run(ctx, stdout, checks) != 0 {
		return errors.New("some checks failed")
	}
	return nil
}

// runSubcommand runs os.Args[1] if it names a subcommand. It reports
// whether it did.
func runSubcommand() bool {
	if len(os.Args) < 2 {
		return false
	}
	cmd, ok := subcommands[os.Args[1]]
	if !ok {
		return false
	}
	if err := cmd(os.Args[2:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "scribe %s: %v\n", os.Args[1], err)
		}
		os.Exit(1)
	}
	return true
}
