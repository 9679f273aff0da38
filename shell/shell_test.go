package shell_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a-h/icode/shell"
)

func TestEcho(t *testing.T) {
	r := shell.Run("echo", []string{"hello", "world"}, "/tmp", nil)
	if r.Stdout != "hello world\n" {
		t.Fatalf("Stdout = %q", r.Stdout)
	}
	if r.ExitCode != shell.ExitOK {
		t.Fatalf("ExitCode = %d, want 0", r.ExitCode)
	}
}

func TestEchoDashN(t *testing.T) {
	r := shell.Run("echo", []string{"-n", "hi"}, "/tmp", nil)
	if r.Stdout != "hi" {
		t.Fatalf("Stdout = %q, want %q", r.Stdout, "hi")
	}
}

func TestPwd(t *testing.T) {
	r := shell.Run("pwd", nil, "/some/dir", nil)
	if r.Stdout != "/some/dir\n" {
		t.Fatalf("Stdout = %q", r.Stdout)
	}
}

func TestMkdirAndLs(t *testing.T) {
	dir := t.TempDir()
	shell.Run("mkdir", []string{"-p", "a/b/c"}, dir, nil)
	if _, err := os.Stat(filepath.Join(dir, "a", "b", "c")); err != nil {
		t.Fatalf("mkdir -p did not create nested dirs: %v", err)
	}

	r := shell.Run("ls", []string{"-1"}, dir, nil)
	if strings.TrimSpace(r.Stdout) != "a" {
		t.Fatalf("ls -1 = %q, want %q", r.Stdout, "a\n")
	}
}

func TestCatAndWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hi\nthere\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	r := shell.Run("cat", []string{"f.txt"}, dir, nil)
	if r.Stdout != "hi\nthere\n" {
		t.Fatalf("cat = %q", r.Stdout)
	}
}

func TestRmMissingWithoutForceFails(t *testing.T) {
	dir := t.TempDir()
	r := shell.Run("rm", []string{"missing.txt"}, dir, nil)
	if r.ExitCode != shell.ExitUsageOrError {
		t.Fatalf("ExitCode = %d, want 1", r.ExitCode)
	}
}

func TestRmMissingWithForceSucceeds(t *testing.T) {
	dir := t.TempDir()
	r := shell.Run("rm", []string{"-f", "missing.txt"}, dir, nil)
	if r.ExitCode != shell.ExitOK {
		t.Fatalf("ExitCode = %d, want 0", r.ExitCode)
	}
}

func TestFindExcludesNodeModules(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755)
	os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "index.js"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "app.js"), []byte("x"), 0o644)

	r := shell.Run("find", []string{"-name", "*.js"}, dir, nil)
	if strings.Contains(r.Stdout, "node_modules") {
		t.Fatalf("find output includes node_modules: %q", r.Stdout)
	}
	if !strings.Contains(r.Stdout, "app.js") {
		t.Fatalf("find output missing app.js: %q", r.Stdout)
	}
}

func TestTrueFalse(t *testing.T) {
	if got := shell.Run("true", nil, "/tmp", nil).ExitCode; got != 0 {
		t.Fatalf("true exit = %d", got)
	}
	if got := shell.Run("false", nil, "/tmp", nil).ExitCode; got != 1 {
		t.Fatalf("false exit = %d", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	r := shell.Run("frobnicate", nil, "/tmp", nil)
	if r.ExitCode != shell.ExitNotImplemented {
		t.Fatalf("ExitCode = %d, want 127", r.ExitCode)
	}
}

func TestDirnameBasename(t *testing.T) {
	r := shell.Run("dirname", []string{"/a/b/c.txt"}, "/tmp", nil)
	if strings.TrimSpace(r.Stdout) != "/a/b" {
		t.Fatalf("dirname = %q", r.Stdout)
	}
	r = shell.Run("basename", []string{"/a/b/c.txt"}, "/tmp", nil)
	if strings.TrimSpace(r.Stdout) != "c.txt" {
		t.Fatalf("basename = %q", r.Stdout)
	}
}
