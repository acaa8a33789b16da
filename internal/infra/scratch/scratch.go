// Package scratch manages the isolated working directory for one invocation.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Dir is a scoped scratch workspace. Close removes it when removal was
// requested and is safe to call on every exit path, including after errors.
type Dir struct {
	path    string
	created bool
	remove  bool
}

// Enter opens a workspace scope. When makeDir is false (disk-free programs)
// no directory is created and Path returns "". When base is empty the system
// temporary directory is used. The directory name embeds a fresh UUID so
// concurrent invocations never collide.
//
// A directory that cannot be created (permissions, missing base, disk full)
// fails here, before any program invocation is attempted.
func Enter(base string, makeDir, remove bool) (*Dir, error) {
	if !makeDir {
		return &Dir{}, nil
	}

	if base == "" {
		base = os.TempDir()
	} else {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch base %s: %w", base, err)
		}
	}

	path := filepath.Join(base, "qcop-"+uuid.NewString())
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", path, err)
	}

	return &Dir{path: path, created: true, remove: remove}, nil
}

// Path returns the workspace path, or "" for a disk-free scope.
func (d *Dir) Path() string {
	return d.path
}

// WriteFiles writes the named files into the workspace, creating parent
// directories for nested names.
func (d *Dir) WriteFiles(files map[string][]byte) error {
	for name, data := range files {
		dst := filepath.Join(d.path, name)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create dir for input file %s: %w", name, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("write input file %s: %w", name, err)
		}
	}
	return nil
}

// CollectFiles reads back every file under the workspace, keyed by
// slash-separated path relative to the workspace root. Names in exclude are
// skipped so input files are not echoed as outputs.
func (d *Dir) CollectFiles(exclude []string) (map[string][]byte, error) {
	if !d.created {
		return nil, nil
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[filepath.ToSlash(name)] = true
	}

	files := make(map[string][]byte)
	err := filepath.WalkDir(d.path, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.path, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if skip[name] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read output file %s: %w", name, err)
		}
		files[name] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Close removes the workspace if removal was requested. It is idempotent.
func (d *Dir) Close() error {
	if !d.created || !d.remove {
		return nil
	}
	d.created = false
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("remove scratch dir %s: %w", d.path, err)
	}
	return nil
}
