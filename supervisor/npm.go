package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a-h/icode/resolve"
	"github.com/a-h/icode/script"
)

// npmInstall handles install/i/ci/add: ci and install-with-no-args
// resolve the project's own package.json dependency set; add (and
// install/i given explicit package names) resolve those specs against
// the registry, merging them into the existing lockfile's picks first
// so already-satisfied packages aren't re-resolved.
func (s *Supervisor) npmInstall(ctx context.Context, sub string, args []string, cwd string, emit script.Emit) int {
	production, saveDev, specs := parseInstallArgs(args)

	pkg, _ := readPackageJSON(cwd)
	resolver := resolve.New(s.log, s.newRegistryClient())

	var result resolve.Result
	if len(specs) > 0 {
		existing := existingFromLockfile(cwd)
		result = resolver.ResolvePackages(ctx, specs, existing)
	} else {
		result = resolver.Resolve(ctx, pkg, resolve.Options{Production: production})
	}
	for _, w := range result.Warnings {
		s.log.Warn("resolve warning", "warning", w)
	}

	stats, err := s.newInstaller().Install(ctx, cwd, result.Resolved)
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("npm error: %v\n", err)))
		return script.ExitError
	}
	s.metrics.IncInstall(ctx, int64(stats.Installed), stats.BytesDown)
	for _, e := range stats.Errors {
		emit("stderr", []byte(e+"\n"))
	}

	if sub == "add" {
		for _, spec := range specs {
			name, _ := splitInstallSpec(spec)
			if p, ok := result.Resolved[name]; ok {
				addDependencyToPackageJSON(&pkg, name, "^"+p.Version, saveDev)
			}
		}
		if err := writePackageJSON(cwd, pkg); err != nil {
			s.log.Warn("write package.json", "error", err)
		}
	}

	writeLockfile(cwd, result.Resolved)

	emit("stdout", []byte(fmt.Sprintf("added %d package(s), skipped %d already installed\n", stats.Installed, stats.Skipped)))
	return script.ExitOK
}

func (s *Supervisor) npmUninstall(args []string, cwd string, emit script.Emit) int {
	if len(args) == 0 {
		emit("stderr", []byte("npm error: missing package name\n"))
		return script.ExitError
	}
	pkg, err := readPackageJSON(cwd)
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("npm error: %v\n", err)))
		return script.ExitError
	}
	for _, name := range args {
		delete(pkg.Dependencies, name)
		delete(pkg.DevDependencies, name)
		if err := os.RemoveAll(filepath.Join(cwd, "node_modules", name)); err != nil && !os.IsNotExist(err) {
			emit("stderr", []byte(fmt.Sprintf("npm warn: %v\n", err)))
		}
	}
	if err := writePackageJSON(cwd, pkg); err != nil {
		emit("stderr", []byte(fmt.Sprintf("npm error: %v\n", err)))
		return script.ExitError
	}
	emit("stdout", []byte(fmt.Sprintf("removed %d package(s)\n", len(args))))
	return script.ExitOK
}

func (s *Supervisor) npmInit(cwd string, emit script.Emit) int {
	path := filepath.Join(cwd, "package.json")
	if _, err := os.Stat(path); err == nil {
		emit("stderr", []byte("npm error: package.json already exists\n"))
		return script.ExitError
	}
	pkg := resolve.PackageJSON{
		Name:    filepath.Base(cwd),
		Version: "1.0.0",
		Scripts: map[string]string{"test": `echo "Error: no test specified" && exit 1`},
	}
	if err := writePackageJSON(cwd, pkg); err != nil {
		emit("stderr", []byte(fmt.Sprintf("npm error: %v\n", err)))
		return script.ExitError
	}
	emit("stdout", []byte("Wrote to package.json\n"))
	return script.ExitOK
}

func (s *Supervisor) npmList(cwd string, emit script.Emit) int {
	data, err := os.ReadFile(filepath.Join(cwd, "package-lock.json"))
	if err != nil {
		emit("stdout", []byte("(no dependencies installed)\n"))
		return script.ExitOK
	}
	lock, err := resolve.ParseLockfile(data)
	if err != nil {
		emit("stderr", []byte(fmt.Sprintf("npm error: %v\n", err)))
		return script.ExitError
	}
	var b strings.Builder
	for _, name := range lock.Names() {
		fmt.Fprintf(&b, "%s@%s\n", name, lock.Dependencies[name].Version)
	}
	emit("stdout", []byte(b.String()))
	return script.ExitOK
}

func parseInstallArgs(args []string) (production, saveDev bool, specs []string) {
	for _, a := range args {
		switch {
		case a == "--production" || strings.HasPrefix(a, "--omit=dev"):
			production = true
		case a == "--save-dev" || a == "-D":
			saveDev = true
		case strings.HasPrefix(a, "-"):
			// unrecognized flag: ignored rather than rejected, matching the
			// "no strict mode" resolver-conflict posture.
		default:
			specs = append(specs, a)
		}
	}
	return
}

func splitInstallSpec(spec string) (name, rangeStr string) {
	if idx := strings.LastIndexByte(spec, '@'); idx > 0 {
		return spec[:idx], spec[idx+1:]
	}
	return spec, ""
}

func addDependencyToPackageJSON(pkg *resolve.PackageJSON, name, rangeStr string, dev bool) {
	if dev {
		if pkg.DevDependencies == nil {
			pkg.DevDependencies = map[string]string{}
		}
		pkg.DevDependencies[name] = rangeStr
		return
	}
	if pkg.Dependencies == nil {
		pkg.Dependencies = map[string]string{}
	}
	pkg.Dependencies[name] = rangeStr
}

func readPackageJSON(cwd string) (resolve.PackageJSON, error) {
	data, err := os.ReadFile(filepath.Join(cwd, "package.json"))
	if err != nil {
		return resolve.PackageJSON{}, err
	}
	return resolve.ParsePackageJSON(data)
}

func writePackageJSON(cwd string, pkg resolve.PackageJSON) error {
	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cwd, "package.json"), append(data, '\n'), 0o644)
}

func writeLockfile(cwd string, resolved map[string]*resolve.ResolvedPackage) {
	lock := resolve.BuildLockfile(resolved)
	data, err := lock.Marshal()
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(cwd, "package-lock.json"), data, 0o644)
}

// existingFromLockfile seeds a resolve as "already picked" from the
// project's current lockfile, so `npm add` doesn't re-resolve packages
// that are already satisfied on disk.
func existingFromLockfile(cwd string) map[string]*resolve.ResolvedPackage {
	data, err := os.ReadFile(filepath.Join(cwd, "package-lock.json"))
	if err != nil {
		return nil
	}
	lock, err := resolve.ParseLockfile(data)
	if err != nil {
		return nil
	}
	existing := make(map[string]*resolve.ResolvedPackage, len(lock.Dependencies))
	names := lock.Names()
	sort.Strings(names)
	for _, name := range names {
		entry := lock.Dependencies[name]
		existing[name] = &resolve.ResolvedPackage{
			Name:         name,
			Version:      entry.Version,
			Tarball:      entry.Resolved,
			Integrity:    entry.Integrity,
			Dependencies: entry.Requires,
		}
	}
	return existing
}
