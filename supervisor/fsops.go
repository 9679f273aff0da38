package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/a-h/icode/messageloop"
)

var snapshotTextExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".json": true,
	".css": true, ".html": true, ".md": true, ".txt": true, ".yml": true, ".yaml": true,
}

var skippedDirNames = map[string]bool{"node_modules": true, ".git": true, ".cache": true}

// Ping replies pong with the runtime identity the UI uses to label the
// connection.
func (s *Supervisor) Ping(in messageloop.Inbound) {
	s.write(messageloop.Outbound{Type: messageloop.TypePong, ID: in.ID, NodeVersion: nodeVersion, Platform: runtime.GOOS})
}

// GetInfo replies with the process/environment identity the UI needs to
// render its settings surface.
func (s *Supervisor) GetInfo(in messageloop.Inbound, datadir, projectsDir string) {
	execPath, _ := os.Executable()
	s.write(messageloop.Outbound{
		Type:        messageloop.TypeInfo,
		ID:          in.ID,
		NodeVersion: nodeVersion,
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
		Datadir:     datadir,
		ProjectsDir: projectsDir,
		ExecPath:    execPath,
	})
}

// WriteFile writes in.Content to in.Path, creating parent directories
// first, matching the "synchronous best-effort" filesystem-op contract.
func (s *Supervisor) WriteFile(in messageloop.Inbound) {
	if err := os.MkdirAll(filepath.Dir(in.Path), 0o755); err != nil {
		s.writeError(in.ID, err.Error())
		return
	}
	if err := os.WriteFile(in.Path, []byte(in.Content), 0o644); err != nil {
		s.writeError(in.ID, err.Error())
		return
	}
	s.touch()
	s.write(messageloop.Outbound{Type: messageloop.TypeDone, ID: in.ID})
}

// ReadFile replies with the file's contents, or an error frame.
func (s *Supervisor) ReadFile(in messageloop.Inbound) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		s.writeError(in.ID, err.Error())
		return
	}
	s.write(messageloop.Outbound{Type: messageloop.TypeResult, ID: in.ID, ContentResult: string(data)})
}

// Mkdir creates in.Path (and any missing parents).
func (s *Supervisor) Mkdir(in messageloop.Inbound) {
	if err := os.MkdirAll(in.Path, 0o755); err != nil {
		s.writeError(in.ID, err.Error())
		return
	}
	s.touch()
	s.write(messageloop.Outbound{Type: messageloop.TypeDone, ID: in.ID})
}

// ReadDir lists in.Path's immediate entries.
func (s *Supervisor) ReadDir(in messageloop.Inbound) {
	entries, err := os.ReadDir(in.Path)
	if err != nil {
		s.writeError(in.ID, err.Error())
		return
	}
	out := make([]messageloop.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, messageloop.DirEntry{Name: e.Name(), IsDirectory: e.IsDir()})
	}
	s.write(messageloop.Outbound{Type: messageloop.TypeResult, ID: in.ID, Entries: out})
}

// Snapshot walks in.Path (the project root), skipping node_modules/.git/
// .cache and dotfiles, and replies with every text-set file's contents
// keyed by its path relative to the root — feeding both the preview
// bundle builder's own re-scan and an editor-side full resync.
func (s *Supervisor) Snapshot(in messageloop.Inbound) {
	root := in.Path
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		name := d.Name()
		if d.IsDir() {
			if rel != "." && (skippedDirNames[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !snapshotTextExtensions[filepath.Ext(name)] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil // best-effort: a file that vanishes mid-walk is skipped, not fatal
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		s.writeError(in.ID, fmt.Sprintf("snapshot %s: %v", root, err))
		return
	}
	s.write(messageloop.Outbound{Type: messageloop.TypeResult, ID: in.ID, Files: files})
}
