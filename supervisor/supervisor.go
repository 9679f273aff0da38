// Package supervisor is the command router: it owns the task table, the
// emit/cancellation contract every subsystem runs under, and dispatches
// each exec request to shell builtins, the script runner, or the npm
// subcommand layer. It is the composition root that wires (D)+(B)+(A)
// during resolve and (E)+(B)+(C) during install, in the
// "construct once, pass explicit constructors down" style
// ServeCmd.Run uses to build depot's HTTP server.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/a-h/icode/messageloop"
	"github.com/a-h/icode/metrics"
)

// Task is one in-flight exec, keyed by the id the request frame carried.
type Task struct {
	ID     int64
	Kind   string
	cancel context.CancelFunc
}

// Supervisor holds the task table and the shared dependencies every
// dispatch target needs (a logger, the reply channel, the registry
// base URL, and a hook to nudge the preview server's change watcher).
type Supervisor struct {
	log         *slog.Logger
	out         *messageloop.Writer
	metrics     metrics.Metrics
	registryURL string
	projectsDir string
	onMutation  func()

	mu    sync.Mutex
	tasks map[int64]*Task
}

// New constructs a Supervisor. onMutation, if non-nil, is called after
// any exec or filesystem op that may have changed files on disk, so the
// preview server's change-poll endpoint can wake up even when no
// filesystem watcher is attached to the tree being edited.
func New(log *slog.Logger, out *messageloop.Writer, m metrics.Metrics, registryURL, projectsDir string, onMutation func()) *Supervisor {
	return &Supervisor{
		log:         log,
		out:         out,
		metrics:     m,
		registryURL: registryURL,
		projectsDir: projectsDir,
		onMutation:  onMutation,
		tasks:       make(map[int64]*Task),
	}
}

func (s *Supervisor) touch() {
	if s.onMutation != nil {
		s.onMutation()
	}
}

// Exec allocates a task under in.ID, ensures in.Cwd exists, and runs the
// command asynchronously, streaming stdout/stderr frames back as the
// handler produces them and finishing with exit or error. It returns
// immediately; the caller's read loop keeps processing further frames
// while the task runs.
func (s *Supervisor) Exec(in messageloop.Inbound) {
	id := in.ID
	cwd := in.Cwd
	if cwd == "" {
		cwd = s.projectsDir
	}
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		s.writeError(id, fmt.Sprintf("cannot create working directory: %v", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{ID: id, Kind: "exec", cancel: cancel}
	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()
	s.metrics.IncTaskStarted(ctx, "exec")

	emit := func(stream string, data []byte) {
		if len(data) == 0 {
			return
		}
		typ := messageloop.TypeStdout
		if stream == "stderr" {
			typ = messageloop.TypeStderr
		}
		s.write(messageloop.Outbound{Type: typ, ID: id, Data: string(data)})
	}

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
			cancel()
		}()
		code := s.dispatch(ctx, in.Command, in.Args, cwd, emit)
		s.touch()
		s.write(messageloop.Outbound{Type: messageloop.TypeExit, ID: id, Code: code})
	}()
}

// Kill cancels the named task's token. Per the ordering guarantee, the
// killed frame is written before cancel() is called, so it always
// precedes the owning task's eventual exit frame.
func (s *Supervisor) Kill(in messageloop.Inbound) {
	s.mu.Lock()
	t, ok := s.tasks[in.ProcessID]
	s.mu.Unlock()
	if !ok {
		s.writeError(in.ID, fmt.Sprintf("no such task: %d", in.ProcessID))
		return
	}
	s.write(messageloop.Outbound{Type: messageloop.TypeKilled, ID: in.ID})
	s.metrics.IncTaskCanceled(context.Background(), t.Kind)
	t.cancel()
}

// CancelAll transitions every live task's token to canceled, for an
// app-level pause: the UI goes background, all outstanding work stops.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[int64]*Task)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

func (s *Supervisor) write(f messageloop.Outbound) {
	if err := s.out.Write(f); err != nil {
		s.log.Error("write frame", slog.String("error", err.Error()))
	}
}

// UnknownFrameType replies with an error for any inbound frame type the
// message loop doesn't recognize, rather than silently dropping it.
func (s *Supervisor) UnknownFrameType(in messageloop.Inbound) {
	s.writeError(in.ID, fmt.Sprintf("unknown frame type: %q", in.Type))
}

func (s *Supervisor) writeError(id int64, message string) {
	s.write(messageloop.Outbound{Type: messageloop.TypeError, ID: id, Message: message})
}
