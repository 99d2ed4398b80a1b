//go:build integration

package test_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SCRIBE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SCRIBE_TEST_BIN not set; build scribe and point SCRIBE_TEST_BIN at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

const testConfig = `language: en-US
punctuation: medium
timing:
  settle_delay_ms: 20
  restart_delay_ms: 20
  status_ttl_ms: 60000
  error_ttl_ms: 60000
`

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// runScribe runs the binary in test mode with script as the recognition
// script and returns its stdout and log directory.
func runScribe(t *testing.T, script, stdin string, args ...string) (out, logDir string) {
	t.Helper()
	dir := t.TempDir()
	logDir = filepath.Join(dir, "logs")
	scriptPath := filepath.Join(dir, "script.txt")
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(scriptPath, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}

	cmdArgs := append([]string{"-config", configPath, "-logpath", logDir}, args...)
	cmdArgs = append(cmdArgs, "-test", scriptPath)
	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("scribe exited with error: %v\noutput: %s", err, output)
	}
	return string(output), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func requireLine(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Errorf("output missing %q:\n%s", want, out)
	}
}

func TestDictation(t *testing.T) {
	out, logDir := runScribe(t, "final hello world\nsleep 5000\n",
		cmds("START", "WAIT recording", "SLEEP 200", "STOP", "WAIT", "PRINT", "CUES", "QUIT"))

	requireLine(t, out, "STATE idle -> permission_pending")
	requireLine(t, out, "STATE starting -> recording")
	requireLine(t, out, "STATE stopping -> idle")
	requireLine(t, out, "CUES start,stop")
	if !strings.Contains(strings.ToLower(out), `text "hello world`) {
		t.Errorf("dictated text missing:\n%s", out)
	}
	if !strings.Contains(strings.ToLower(readLog(t, logDir, "transcribe_log.txt")), "hello world") {
		t.Error("transcribe_log.txt does not contain the dictation")
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "session_end", "state_change"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %s", want)
		}
	}
}

func TestAutoRestart(t *testing.T) {
	out, logDir := runScribe(t, "final one\nend\nfinal two\nsleep 5000\n",
		cmds("START", "WAIT recording", "SLEEP 400", "STOP", "WAIT", "PRINT", "QUIT"))

	lower := strings.ToLower(out)
	if !strings.Contains(lower, "one") || !strings.Contains(lower, "two") {
		t.Errorf("expected text from both runs:\n%s", out)
	}
	if !strings.Contains(readLog(t, logDir, "diagnostics_log.txt"), "recognition_restart") {
		t.Error("expected recognition_restart in diagnostics")
	}
}

func TestNoSpeechKeepsRecording(t *testing.T) {
	out, _ := runScribe(t, "error no-speech\nsleep 5000\n",
		cmds("START", "WAIT recording", "SLEEP 200", "STATUS", "STOP", "WAIT", "QUIT"))

	requireLine(t, out, "STATUS warning: No speech detected")
	requireLine(t, out, "NOW recording")
}

func TestNotAllowedStops(t *testing.T) {
	out, _ := runScribe(t, "sleep 300\nerror not-allowed\nsleep 5000\n",
		cmds("START", "WAIT recording", "WAIT", "STATUS", "CUES", "QUIT"))

	requireLine(t, out, "STATE recording -> error")
	requireLine(t, out, "STATE error -> idle")
	requireLine(t, out, "NOW idle 00:00 error: Microphone access denied")
	requireLine(t, out, "CUES start,error")
}

func TestMicrophoneDenied(t *testing.T) {
	out, _ := runScribe(t, "",
		cmds("MIC denied", "START", "WAIT", "STATUS", "MIC ok", "START", "WAIT recording", "STOP", "WAIT", "QUIT"))

	requireLine(t, out, "NOW idle 00:00 error: Microphone access denied")
	requireLine(t, out, "STATE permission_pending -> starting")
}

func TestEditingCommands(t *testing.T) {
	out, _ := runScribe(t, "",
		cmds("TEXT hello world. how are you", "FORMAT", "PRINT", "COPY", "CLIPBOARD", "CLEAR", "PRINT", "QUIT"))

	requireLine(t, out, `TEXT "Hello world. How are you"`)
	requireLine(t, out, `CLIPBOARD "Hello world. How are you"`)
	requireLine(t, out, `TEXT ""`)
}

func TestBadCommands(t *testing.T) {
	out, _ := runScribe(t, "", cmds("LANG not a tag!", "LEVEL loud", "JUMP", "QUIT"))

	if n := strings.Count(out, "ERROR"); n != 3 {
		t.Errorf("got %d errors, want 3:\n%s", n, out)
	}
}
