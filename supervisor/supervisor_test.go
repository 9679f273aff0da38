package supervisor_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a-h/icode/messageloop"
	"github.com/a-h/icode/metrics"
	"github.com/a-h/icode/supervisor"
)

func newTestSupervisor(t *testing.T, out io.Writer) *supervisor.Supervisor {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := messageloop.NewWriter(out)
	return supervisor.New(log, w, metrics.Metrics{}, "https://registry.npmjs.org", t.TempDir(), nil)
}

func decodeFrames(t *testing.T, data []byte) []messageloop.Outbound {
	t.Helper()
	var frames []messageloop.Outbound
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var f messageloop.Outbound
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestSupervisor_WriteFileThenReadFile(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSupervisor(t, &buf)
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "hello.txt")

	s.WriteFile(messageloop.Inbound{ID: 1, Path: path, Content: "hi there"})
	s.ReadFile(messageloop.Inbound{ID: 2, Path: path})

	frames := decodeFrames(t, buf.Bytes())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(frames), frames)
	}
	if frames[0].Type != messageloop.TypeDone || frames[0].ID != 1 {
		t.Errorf("frame 0 = %+v, want done/1", frames[0])
	}
	if frames[1].Type != messageloop.TypeResult || frames[1].ContentResult != "hi there" {
		t.Errorf("frame 1 = %+v, want result with content %q", frames[1], "hi there")
	}
}

func TestSupervisor_ReadFileMissingReturnsError(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSupervisor(t, &buf)
	s.ReadFile(messageloop.Inbound{ID: 7, Path: filepath.Join(t.TempDir(), "nope.txt")})

	frames := decodeFrames(t, buf.Bytes())
	if len(frames) != 1 || frames[0].Type != messageloop.TypeError {
		t.Fatalf("got %+v, want a single error frame", frames)
	}
}

func TestSupervisor_Snapshot(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSupervisor(t, &buf)
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"index.js":                "console.log(1);",
		"node_modules/x/index.js": "module.exports = 1;",
		".env":                    "SECRET=1",
		"README.md":               "# hi",
	})

	s.Snapshot(messageloop.Inbound{ID: 3, Path: dir})

	frames := decodeFrames(t, buf.Bytes())
	if len(frames) != 1 || frames[0].Type != messageloop.TypeResult {
		t.Fatalf("got %+v, want a single result frame", frames)
	}
	files := frames[0].Files
	if _, ok := files["index.js"]; !ok {
		t.Errorf("expected index.js in snapshot, got %v", keys(files))
	}
	if _, ok := files["README.md"]; !ok {
		t.Errorf("expected README.md in snapshot, got %v", keys(files))
	}
	if _, ok := files["node_modules/x/index.js"]; ok {
		t.Errorf("node_modules should be skipped, got %v", keys(files))
	}
	if _, ok := files[".env"]; ok {
		t.Errorf("dotfiles should be skipped, got %v", keys(files))
	}
}

func TestSupervisor_KillSendsKilledBeforeExit(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSupervisor(t, &buf)
	dir := t.TempDir()

	s.Exec(messageloop.Inbound{ID: 1, Command: "npm", Args: []string{"start"}, Cwd: dir})

	// Give the exec goroutine time to reach the preview server's blocking
	// wait (there's no scripts.start and no server.js/index.js, so it
	// falls through to the long-running preview fallback).
	deadline := time.Now().Add(2 * time.Second)
	for buf.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Kill(messageloop.Inbound{ID: 2, ProcessID: 1})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := decodeFrames(t, buf.Bytes())
		if len(frames) > 0 && frames[len(frames)-1].Type == messageloop.TypeExit {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	frames := decodeFrames(t, buf.Bytes())
	killedIdx, exitIdx := -1, -1
	for i, f := range frames {
		if f.Type == messageloop.TypeKilled {
			killedIdx = i
		}
		if f.Type == messageloop.TypeExit {
			exitIdx = i
		}
	}
	if killedIdx == -1 || exitIdx == -1 {
		t.Fatalf("expected both killed and exit frames, got %+v", frames)
	}
	if killedIdx > exitIdx {
		t.Errorf("killed frame at %d came after exit frame at %d", killedIdx, exitIdx)
	}
	if frames[exitIdx].Code != 130 {
		t.Errorf("exit code = %d, want 130", frames[exitIdx].Code)
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
