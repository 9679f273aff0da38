// Command icode-core is the backend of the mobile IDE: a single binary
// that, run as `icode-core serve`, speaks the line-delimited JSON
// message protocol over stdin/stdout and dispatches exec/filesystem
// requests to the shell, script, npm, and preview subsystems.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/a-h/icode/messageloop"
	"github.com/a-h/icode/metrics"
	"github.com/a-h/icode/supervisor"
)

// Globals carries the flags every subcommand can read.
type Globals struct {
	Verbose     bool   `help:"Enable debug logging" short:"v" env:"ICODE_VERBOSE"`
	Datadir     string `help:"Root directory for persistent state" default:"." env:"ICODE_DATADIR"`
	ProjectsDir string `help:"Root directory containing project trees" default:"projects" env:"ICODE_PROJECTS_DIR"`
}

// CLI is the top-level kong command set.
type CLI struct {
	Globals
	Version VersionCmd `cmd:"" help:"Show version information"`
	Serve   ServeCmd   `cmd:"" help:"Run the message loop over stdin/stdout"`
}

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// VersionCmd prints the build version and exits.
type VersionCmd struct{}

func (cmd *VersionCmd) Run(globals *Globals) error {
	fmt.Println(Version)
	return nil
}

// ServeCmd runs the message loop: read frames from stdin, dispatch
// through the supervisor, write reply/notification frames to stdout.
type ServeCmd struct {
	RegistryURL string `help:"npm registry base URL" default:"https://registry.npmjs.org" env:"ICODE_REGISTRY_URL"`
	MetricsAddr string `help:"Address to serve Prometheus metrics on (disabled when empty)" default:"" env:"ICODE_METRICS_ADDR"`
}

func (cmd *ServeCmd) Run(globals *Globals) error {
	opts := &slog.HandlerOptions{}
	if globals.Verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	if err := os.MkdirAll(globals.ProjectsDir, 0o755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}
	if cmd.MetricsAddr != "" {
		go func() {
			if err := metrics.ListenAndServe(cmd.MetricsAddr); err != nil {
				log.Error("metrics server exited", slog.String("error", err.Error()))
			}
		}()
	}

	out := messageloop.NewWriter(os.Stdout)
	super := supervisor.New(log, out, m, cmd.RegistryURL, globals.ProjectsDir, nil)

	if err := out.Write(messageloop.Outbound{Type: messageloop.TypeReady, NodeVersion: "v20.11.0"}); err != nil {
		return fmt.Errorf("write ready frame: %w", err)
	}

	in := messageloop.NewReader(os.Stdin)
	for {
		frame, err := in.Next()
		if errors.Is(err, io.EOF) {
			log.Info("stdin closed, shutting down")
			super.CancelAll()
			return nil
		}
		if err != nil {
			log.Error("read frame", slog.String("error", err.Error()))
			continue
		}
		dispatchFrame(super, globals, frame)
	}
}

func dispatchFrame(super *supervisor.Supervisor, globals *Globals, frame messageloop.Inbound) {
	switch frame.Type {
	case messageloop.TypePing:
		super.Ping(frame)
	case messageloop.TypeExec:
		super.Exec(frame)
	case messageloop.TypeKill:
		super.Kill(frame)
	case messageloop.TypeWriteFile:
		super.WriteFile(frame)
	case messageloop.TypeReadFile:
		super.ReadFile(frame)
	case messageloop.TypeMkdir:
		super.Mkdir(frame)
	case messageloop.TypeReadDir:
		super.ReadDir(frame)
	case messageloop.TypeGetInfo:
		super.GetInfo(frame, globals.Datadir, globals.ProjectsDir)
	case messageloop.TypeSnapshot:
		super.Snapshot(frame)
	default:
		super.UnknownFrameType(frame)
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("icode-core"),
		kong.Description("Backend of the mobile IDE: command router, npm-lite package manager, script runner, and developer preview server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
