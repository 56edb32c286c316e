package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoWorkspace is returned when a project root is required but no
// workspace folder is open.
var ErrNoWorkspace = errors.New("unable to determine workspace folder: it appears that no workspace folder is open")

// Workspace is the host's file and folder model.
type Workspace interface {
	// Root returns the root folder of the active workspace or ErrNoWorkspace
	Root() (string, error)
	// Document returns the live document for path if one is available
	Document(path string) (Document, bool)
	// FindFiles searches the workspace for files whose path ends with relPath
	FindFiles(relPath string) ([]string, error)
}

// ProjectRoot returns override when set, otherwise the root of ws.
func ProjectRoot(ws Workspace, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if ws == nil {
		return "", ErrNoWorkspace
	}
	return ws.Root()
}

// excludedDirs are skipped while searching for files.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"tmp":          true,
	"log":          true,
}

// DirWorkspace is a Workspace backed by folders on disk plus a set of
// documents held open in memory, which take precedence over disk contents.
type DirWorkspace struct {
	mu      sync.RWMutex
	folders []string
	open    map[string]Document
}

// NewDirWorkspace creates a workspace over the given folders. Zero folders is
// valid and models an editor with loose files only.
func NewDirWorkspace(folders ...string) *DirWorkspace {
	cleaned := make([]string, 0, len(folders))
	for _, folder := range folders {
		if folder == "" {
			continue
		}
		if abs, err := filepath.Abs(folder); err == nil {
			folder = abs
		}
		cleaned = append(cleaned, filepath.Clean(folder))
	}
	return &DirWorkspace{
		folders: cleaned,
		open:    make(map[string]Document),
	}
}

// Root returns the first workspace folder.
func (w *DirWorkspace) Root() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.folders) == 0 {
		return "", ErrNoWorkspace
	}
	return w.folders[0], nil
}

// Open registers doc as the live buffer for its path.
func (w *DirWorkspace) Open(doc Document) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open[doc.Path()] = doc
}

// Close forgets the live buffer for path.
func (w *DirWorkspace) Close(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.open, path)
}

// Document returns the open buffer for path, falling back to the file on disk.
func (w *DirWorkspace) Document(path string) (Document, bool) {
	w.mu.RLock()
	doc, ok := w.open[path]
	w.mu.RUnlock()
	if ok {
		return doc, true
	}

	disk, err := ReadDocument(path)
	if err != nil {
		return nil, false
	}
	return disk, true
}

// FindFiles walks every workspace folder and returns files whose path ends
// with relPath. Open documents are matched too. Results are sorted.
func (w *DirWorkspace) FindFiles(relPath string) ([]string, error) {
	relPath = filepath.Clean(strings.TrimPrefix(strings.TrimPrefix(relPath, "./"), ".\\"))
	if relPath == "." || relPath == "" {
		return nil, fmt.Errorf("empty search path")
	}
	suffix := string(filepath.Separator) + relPath

	w.mu.RLock()
	folders := append([]string(nil), w.folders...)
	seen := make(map[string]bool)
	for path := range w.open {
		if strings.HasSuffix(path, suffix) || path == relPath {
			seen[path] = true
		}
	}
	w.mu.RUnlock()

	for _, folder := range folders {
		err := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				name := d.Name()
				if path != folder && (strings.HasPrefix(name, ".") || excludedDirs[name]) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, suffix) {
				seen[path] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", folder, err)
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
