package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Workspaces allocates one local directory tree per conversion run.
type Workspaces struct {
	BaseDir string
	Keep    bool
}

func NewWorkspaces(baseDir string, keep bool) *Workspaces {
	return &Workspaces{BaseDir: baseDir, Keep: keep}
}

type Workspace struct {
	Root string
	keep bool
}

// Create returns a workspace rooted at <base>/<unixnano>-<resourceID>.
// Existing directories are reused rather than treated as errors. The root is
// always absolute: tools run with their own working directory.
func (w *Workspaces) Create(resourceID string, now time.Time) (*Workspace, error) {
	base, err := filepath.Abs(w.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace dir %s: %w", w.BaseDir, err)
	}
	root := filepath.Join(base, fmt.Sprintf("%d-%s", now.UnixNano(), resourceID))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", root, err)
	}
	return &Workspace{Root: root, keep: w.Keep}, nil
}

// Layout returns the paths for a source file stored at the workspace root.
func (ws *Workspace) Layout(filename string) Layout {
	return NewLayout(ws.Root, filename)
}

// Cleanup removes the workspace. Safe to call more than once.
func (ws *Workspace) Cleanup() error {
	if ws.keep {
		return nil
	}
	return os.RemoveAll(ws.Root)
}

// Layout holds every path a run touches. Build it with NewLayout; stages
// must not join workspace paths on their own.
type Layout struct {
	Root        string
	Conversions string
	Media       string
	Unzipped    string

	// Source is the document being converted, Base its name without extension.
	Source string
	Base   string
	Docx   string
	HTML   string
	PDF    string
}

func NewLayout(root, filename string) Layout {
	return newLayout(root, filepath.Join(root, filepath.Base(filename)))
}

func newLayout(root, source string) Layout {
	conversions := filepath.Join(root, "conversions")
	name := filepath.Base(source)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return Layout{
		Root:        root,
		Conversions: conversions,
		Media:       filepath.Join(conversions, "media"),
		Unzipped:    filepath.Join(conversions, "unzipped"),
		Source:      source,
		Base:        base,
		Docx:        filepath.Join(conversions, base+".docx"),
		HTML:        filepath.Join(conversions, base+".html"),
		PDF:         filepath.Join(conversions, base+".pdf"),
	}
}

// WithSource returns the layout for another document of the same run, such
// as the main file of an extracted archive.
func (l Layout) WithSource(source string) Layout {
	return newLayout(l.Root, source)
}

// Ext is the lower-cased source extension.
func (l Layout) Ext() string {
	return strings.ToLower(filepath.Ext(l.Source))
}

// Ensure creates the conversions directory.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.Conversions, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", l.Conversions, err)
	}
	return nil
}
