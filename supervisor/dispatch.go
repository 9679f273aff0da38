package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/icode/archive"
	"github.com/a-h/icode/install"
	"github.com/a-h/icode/preview"
	"github.com/a-h/icode/registry"
	"github.com/a-h/icode/script"
	"github.com/a-h/icode/shell"
)

var npmAliases = map[string]bool{"npm": true, "yarn": true, "pnpm": true, "bun": true}

// dispatch routes one exec request's command to shell builtins, the
// script runner, or the npm subcommand layer, mirroring the CLI surface
// exposed through exec: shell builtins, node/npx, and npm (plus its
// yarn/pnpm/bun aliases).
func (s *Supervisor) dispatch(ctx context.Context, command string, args []string, cwd string, emit script.Emit) int {
	env := processEnv()
	switch {
	case command == "node":
		return s.dispatchNode(ctx, args, cwd, env, emit)
	case command == "npx":
		return s.dispatchNpx(ctx, args, cwd, env, emit)
	case npmAliases[command]:
		return s.dispatchNpm(ctx, args, cwd, env, emit)
	case shell.Builtins[command]:
		res := shell.Run(command, args, cwd, env)
		emit("stdout", []byte(res.Stdout))
		emit("stderr", []byte(res.Stderr))
		return res.ExitCode
	default:
		emit("stderr", []byte(fmt.Sprintf("%s: command not found\n", command)))
		return 127
	}
}

func (s *Supervisor) dispatchNode(ctx context.Context, args []string, cwd string, env map[string]string, emit script.Emit) int {
	if len(args) == 0 {
		return script.RunExpression(ctx, "", false, cwd, env, emit)
	}
	switch args[0] {
	case "-v", "--version":
		emit("stdout", []byte(nodeVersion+"\n"))
		return script.ExitOK
	case "-e":
		if len(args) < 2 {
			emit("stderr", []byte("node: -e requires an expression\n"))
			return script.ExitError
		}
		return script.RunExpression(ctx, args[1], false, cwd, env, emit)
	case "-p":
		if len(args) < 2 {
			emit("stderr", []byte("node: -p requires an expression\n"))
			return script.ExitError
		}
		return script.RunExpression(ctx, args[1], true, cwd, env, emit)
	default:
		file := args[0]
		if !filepath.IsAbs(file) {
			file = filepath.Join(cwd, file)
		}
		return script.RunFile(ctx, file, args[1:], cwd, env, emit)
	}
}

func (s *Supervisor) dispatchNpx(ctx context.Context, args []string, cwd string, env map[string]string, emit script.Emit) int {
	if len(args) == 0 {
		emit("stderr", []byte("npx: missing package/binary name\n"))
		return script.ExitError
	}
	bin := args[0]
	stubPath := filepath.Join(cwd, "node_modules", ".bin", bin)
	if _, err := os.Stat(stubPath); err != nil {
		emit("stderr", []byte(fmt.Sprintf("npx: %s is not installed locally\n", bin)))
		return script.ExitError
	}
	return script.RunBin(ctx, cwd, bin, args[1:], env, emit)
}

// dispatchNpm handles the npm subcommand layer (and its yarn/pnpm/bun
// aliases), composing the resolver, registry client, and installer for
// install/add/ci, running package.json scripts, and the remaining
// low-risk subcommands (init/ls/uninstall/help).
func (s *Supervisor) dispatchNpm(ctx context.Context, args []string, cwd string, env map[string]string, emit script.Emit) int {
	if len(args) == 0 {
		emit("stderr", []byte("npm: missing command\n"))
		return script.ExitError
	}
	if args[0] == "-v" || args[0] == "--version" {
		emit("stdout", []byte(npmVersion+"\n"))
		return script.ExitOK
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "install", "i", "ci", "add":
		return s.npmInstall(ctx, sub, rest, cwd, emit)
	case "uninstall", "remove", "rm", "un":
		return s.npmUninstall(rest, cwd, emit)
	case "run", "run-script":
		if len(rest) == 0 {
			emit("stderr", []byte("npm error: missing script name\n"))
			return script.ExitError
		}
		return s.npmRunScript(ctx, rest[0], rest[1:], cwd, env, emit)
	case "start", "test":
		return s.npmRunScript(ctx, sub, rest, cwd, env, emit)
	case "init":
		return s.npmInit(cwd, emit)
	case "ls", "list":
		return s.npmList(cwd, emit)
	case "help":
		emit("stdout", []byte(npmHelpText))
		return script.ExitOK
	default:
		emit("stderr", []byte(fmt.Sprintf("npm error: unknown command %q\n", sub)))
		return script.ExitError
	}
}

// npmRunScript looks up name in package.json's scripts table and
// re-dispatches its command line. When name is "start" and no such
// script exists, it falls through to the built-in preview server, but
// only when neither server.js nor index.js exists at the project root
// either — both the explicit-script and explicit-file paths take
// precedence over the preview fallback, per the open-question decision
// to make that precedence order visible rather than implicit.
func (s *Supervisor) npmRunScript(ctx context.Context, name string, extraArgs []string, cwd string, env map[string]string, emit script.Emit) int {
	pkg, err := readPackageJSON(cwd)
	line := ""
	if err == nil {
		line = pkg.Scripts[name]
	}
	if line == "" {
		if name == "start" {
			return s.npmStartFallback(ctx, cwd, env, emit)
		}
		emit("stderr", []byte(fmt.Sprintf("npm error: missing script: %q\n", name)))
		return script.ExitError
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return script.ExitOK
	}
	fields = append(fields, extraArgs...)
	s.log.Debug("running package.json script", "name", name, "line", line)
	return s.dispatch(ctx, fields[0], fields[1:], cwd, emit)
}

func (s *Supervisor) npmStartFallback(ctx context.Context, cwd string, env map[string]string, emit script.Emit) int {
	for _, candidate := range []string{"server.js", "index.js"} {
		path := filepath.Join(cwd, candidate)
		if _, err := os.Stat(path); err == nil {
			s.log.Debug("npm start: running explicit entry file, no preview fallback", "path", path)
			return script.RunFile(ctx, path, nil, cwd, env, emit)
		}
	}
	s.log.Debug("npm start: no scripts.start and no server.js/index.js, falling back to preview server", "cwd", cwd)
	return s.runPreviewServer(ctx, cwd, emit)
}

func (s *Supervisor) runPreviewServer(ctx context.Context, cwd string, emit script.Emit) int {
	watcher := preview.NewWatcher(s.log, cwd)
	defer watcher.Close()
	srv := preview.New(s.log, cwd, watcher)
	srv.OnRequest = func(path string) { s.metrics.IncPreviewRequest(ctx, path) }
	addr, stop, err := srv.Listen()
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("preview server: %v\n", err)))
		return script.ExitError
	}
	defer stop()
	emit("stdout", []byte(fmt.Sprintf("Preview server listening on http://%s\n", addr)))
	<-ctx.Done()
	return script.ExitCancelled
}

func (s *Supervisor) newRegistryClient() *registry.Client {
	return registry.New(s.log, s.registryURL)
}

func (s *Supervisor) newInstaller() *install.Installer {
	client := s.newRegistryClient()
	return install.New(s.log, client, archive.Extract)
}

func processEnv() map[string]string {
	env := make(map[string]string, 16)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	return env
}

const (
	nodeVersion = "v20.11.0"
	npmVersion  = "10.2.4"
	npmHelpText = `Usage: npm <command>

Commands:
  install, i, ci, add [pkg...]   Install dependencies
  uninstall, remove, rm, un <pkg...>  Remove dependencies
  run, run-script <name>         Run a package.json script
  start                          Run the "start" script, or fall back to the preview server
  test                           Run the "test" script
  init                           Write a minimal package.json
  ls, list                       List installed dependencies
  help                           Show this message
`
)
