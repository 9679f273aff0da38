// Package archive extracts gzip-compressed tarballs (ustar, PAX, and GNU
// long-name variants) into a destination directory, stripping the leading
// "package/" path component npm tarballs wrap their contents in and
// refusing any entry that would escape the destination.
//
// The standard library's archive/tar reader already resolves PAX "path="
// overrides, GNU long names, and base-256 sizes into a single logical
// header per entry, so this package decodes at that level rather than
// re-implementing 512-byte block parsing; no third-party tar or gzip
// decoder appears anywhere in the reference corpus this is grounded on.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract decompresses and extracts tarball into destDir, stripping the
// first path component of every entry (npm's "package/" wrapper).
func Extract(tarball []byte, destDir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(tarball))
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		entryPath := stripFirstComponent(header.Name)
		if entryPath == "" {
			continue
		}

		target, err := safeJoin(destDir, entryPath)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
			}
			if err := writeFile(target, tr, header.FileInfo().Mode()); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
		case tar.TypeSymlink, tar.TypeLink:
			// Some hosts forbid symlink creation; tolerate failure per
			// the link-entry handling rule and move on to the next
			// entry rather than aborting the whole extraction.
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err == nil {
				_ = os.Symlink(header.Linkname, target)
			}
		default:
			// Unsupported entry types (devices, fifos, ...) are simply
			// skipped; npm tarballs never contain them in practice.
		}
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// stripFirstComponent removes the leading "package/" (or whatever the
// first path segment is) that npm tarballs wrap their contents in.
// Entries consisting only of that single component (the wrapper
// directory itself) are dropped by returning "".
func stripFirstComponent(name string) string {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "./")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

// safeJoin joins name onto destDir, refusing any path that would escape
// destDir via ".." segments or an absolute path.
func safeJoin(destDir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("archive entry name is empty")
	}
	cleanName := filepath.Clean(name)
	if cleanName == "." || cleanName == ".." ||
		strings.HasPrefix(cleanName, ".."+string(filepath.Separator)) ||
		filepath.IsAbs(cleanName) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	target := filepath.Join(destDir, cleanName)
	rel, err := filepath.Rel(filepath.Clean(destDir), filepath.Clean(target))
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, nil
}
