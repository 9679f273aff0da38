// Package script runs a project's JavaScript files and package bins
// in-process using the hand-written interpreter in script/js, instead of
// spawning a real node binary. It owns the sandbox contract: console
// output is redirected through an emit callback, require() resolves
// relative and node_modules specifiers against the real filesystem, and
// a context cancellation maps onto the conventional SIGINT exit code.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/icode/install"
	"github.com/a-h/icode/resolve"
	"github.com/a-h/icode/script/js"
)

// Emit streams one chunk of output on the named stream ("stdout" or
// "stderr") back to the caller (the message loop's task framing).
type Emit func(stream string, data []byte)

const (
	ExitOK        = 0
	ExitError     = 1
	ExitCancelled = 130
)

// RunFile evaluates the JavaScript file at path, exposing argv (node's
// convention: argv[0]="node", argv[1]=path, argv[2:]=extra) and the
// given environment to the script, and returns a process-style exit
// code. emit receives every console.log/error call as it happens.
func RunFile(ctx context.Context, path string, extraArgs []string, cwd string, env map[string]string, emit Emit) int {
	data, err := os.ReadFile(path)
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("Cannot find module '%s'\n", path)))
		return ExitError
	}
	return runSource(ctx, string(data), path, extraArgs, cwd, env, emit, false)
}

// RunExpression evaluates code directly, as node's `-e`/`-p` flags do.
// When print is true the final expression's value is written to stdout
// the way `-p` does.
func RunExpression(ctx context.Context, code string, print bool, cwd string, env map[string]string, emit Emit) int {
	virtualPath := filepath.Join(cwd, "[eval]")
	return runSource(ctx, code, virtualPath, nil, cwd, env, emit, print)
}

// RunBin runs a node_modules/.bin/<name> entry: a stub written by the
// installer, falling back to the package's own package.json bin/main
// field when no stub exists yet.
func RunBin(ctx context.Context, projectDir, binName string, args []string, env map[string]string, emit Emit) int {
	stubPath := filepath.Join(projectDir, "node_modules", ".bin", binName)
	if target, err := install.ReadBinStubTarget(stubPath); err == nil {
		return RunFile(ctx, target, args, projectDir, env, emit)
	}

	pkgDir := filepath.Join(projectDir, "node_modules", binName)
	pkgJSONPath := filepath.Join(pkgDir, "package.json")
	data, err := os.ReadFile(pkgJSONPath)
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("%s: command not found\n", binName)))
		return ExitError
	}
	pkg, err := resolve.ParsePackageJSON(data)
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("%s: invalid package.json: %v\n", binName, err)))
		return ExitError
	}
	binMap := pkg.BinMap()
	entry := binMap[binName]
	if entry == "" {
		entry = pkg.Main
	}
	if entry == "" {
		entry = "index.js"
	}
	return RunFile(ctx, filepath.Join(pkgDir, entry), args, projectDir, env, emit)
}

func runSource(ctx context.Context, source, path string, extraArgs []string, cwd string, env map[string]string, emit Emit, printResult bool) int {
	source = stripShebang(source)

	tokens, err := js.NewLexer(source).Tokenize()
	if err != nil {
		emit("stderr", []byte(err.Error()+"\n"))
		return ExitError
	}
	prog, err := js.NewParser(tokens).Parse()
	if err != nil {
		emit("stderr", []byte(err.Error()+"\n"))
		return ExitError
	}

	interp := js.NewInterpreter()
	interp.Ctx = ctx
	interp.Print = func(stream, s string) { emit(stream, []byte(s)) }

	argv := append([]string{"node", path}, extraArgs...)
	interp.Global.Declare("var", "process", js.NewProcessObject(argv, cwd, env))

	loader := &moduleLoader{ctx: ctx, cwd: cwd, cache: make(map[string]js.Value), print: interp.Print}
	interp.Require = loader.require
	interp.SetupModule(path, filepath.Dir(path))

	value, err := interp.Run(prog)
	return reportResult(runResult{value: value, err: err}, printResult, emit)
}

type runResult struct {
	value js.Value
	err   error
}

func reportResult(res runResult, printResult bool, emit Emit) int {
	if res.err != nil {
		if exit, ok := res.err.(*js.ExitSignal); ok {
			return exit.Code
		}
		if js.IsCancelled(res.err) {
			return ExitCancelled
		}
		emit("stderr", []byte(res.err.Error()+"\n"))
		return ExitError
	}
	if printResult && res.value != nil {
		emit("stdout", []byte(js.ToString(res.value)+"\n"))
	}
	return ExitOK
}

func stripShebang(source string) string {
	if !strings.HasPrefix(source, "#!") {
		return source
	}
	idx := strings.IndexByte(source, '\n')
	if idx == -1 {
		return ""
	}
	return source[idx:] // keep the newline so line numbers stay aligned
}

// moduleLoader resolves require() specifiers against the real
// filesystem and caches each module's exports for the lifetime of one
// RunFile/RunExpression call, matching node's per-process module cache.
type moduleLoader struct {
	ctx   context.Context
	cwd   string
	cache map[string]js.Value
	print func(stream, s string)
}

func (l *moduleLoader) require(spec string) (js.Value, error) {
	resolved, err := l.resolveSpec(spec)
	if err != nil {
		return nil, err
	}
	if v, ok := l.cache[resolved]; ok {
		return v, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("Cannot find module '%s'", spec)
	}

	if strings.HasSuffix(resolved, ".json") {
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %v", resolved, err)
		}
		v := js.JSONValue(raw)
		l.cache[resolved] = v
		return v, nil
	}

	child := js.NewInterpreter()
	child.Ctx = l.ctx
	child.Print = l.print
	childLoader := &moduleLoader{ctx: l.ctx, cwd: filepath.Dir(resolved), cache: l.cache, print: l.print}
	child.Require = childLoader.require
	exports := child.SetupModule(resolved, filepath.Dir(resolved))
	l.cache[resolved] = exports // set before running, so a require cycle sees the in-progress exports object

	tokens, err := js.NewLexer(stripShebang(string(data))).Tokenize()
	if err != nil {
		return nil, err
	}
	prog, err := js.NewParser(tokens).Parse()
	if err != nil {
		return nil, err
	}
	if _, err := child.Run(prog); err != nil {
		if _, ok := err.(*js.ExitSignal); !ok {
			return nil, err
		}
	}

	finalExports := child.ModuleExports()
	l.cache[resolved] = finalExports
	return finalExports, nil
}

func (l *moduleLoader) resolveSpec(spec string) (string, error) {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/") {
		return resolveFileCandidates(filepath.Join(l.cwd, spec))
	}
	return resolveNodeModule(l.cwd, spec)
}

func resolveFileCandidates(base string) (string, error) {
	candidates := []string{base, base + ".js", base + ".json", filepath.Join(base, "index.js")}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("Cannot find module '%s'", base)
}

// resolveNodeModule walks up from dir looking for node_modules/<spec>,
// the same upward search node itself performs.
func resolveNodeModule(dir, spec string) (string, error) {
	for {
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(spec))
		pkgJSON := filepath.Join(candidate, "package.json")
		if data, err := os.ReadFile(pkgJSON); err == nil {
			pkg, err := resolve.ParsePackageJSON(data)
			if err == nil {
				entry := pkg.Main
				if entry == "" {
					entry = "index.js"
				}
				if resolved, err := resolveFileCandidates(filepath.Join(candidate, entry)); err == nil {
					return resolved, nil
				}
			}
		}
		if resolved, err := resolveFileCandidates(candidate); err == nil {
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("Cannot find module '%s'", spec)
}
