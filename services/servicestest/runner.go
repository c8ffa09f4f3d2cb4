// Package servicestest provides fakes for the external tools and
// collaborators of the conversion services.
package servicestest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"manuscript-converter/config"
	"manuscript-converter/services"
)

// Tools returns plain binary names, independent of the environment.
func Tools() config.Tools {
	return config.Tools{
		Pandoc:    "pandoc",
		Soffice:   "soffice",
		PDFLatex:  "pdflatex",
		Bibtex:    "bibtex",
		Inkscape:  "inkscape",
		Mogrify:   "mogrify",
		Cwebp:     "cwebp",
		Optipng:   "optipng",
		Pngquant:  "pngquant",
		Jpegoptim: "jpegoptim",
		Unzip:     "unzip",
	}
}

// FakeRunner records commands and writes the files the real tools would
// produce, so stages can be run end to end without the binaries.
type FakeRunner struct {
	mu    sync.Mutex
	calls []services.Command

	// Images are the media files pandoc "extracts" during HTML conversion.
	Images []string
	// Archive maps relative paths to contents written by unzip.
	Archive map[string]string
	// Fail makes every invocation of the named tool return the error. A nil
	// entry makes the tool succeed without writing anything.
	Fail map[string]error
	// FailOn overrides Fail for finer selection.
	FailOn func(services.Command) error
}

func (f *FakeRunner) Run(_ context.Context, c services.Command) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.FailOn != nil {
		if err := f.FailOn(c); err != nil {
			return "", err
		}
	}
	if err, ok := f.Fail[c.Name]; ok {
		return "", err
	}
	return "", f.simulate(c)
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []services.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.Command(nil), f.calls...)
}

// CallsTo returns the recorded invocations of one tool.
func (f *FakeRunner) CallsTo(name string) []services.Command {
	var out []services.Command
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the tool names in invocation order.
func (f *FakeRunner) Names() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Name)
	}
	return out
}

func (f *FakeRunner) simulate(c services.Command) error {
	switch c.Name {
	case "pandoc":
		return f.pandoc(c)
	case "soffice":
		format := argAfter(c.Args, "--convert-to")
		outDir := argAfter(c.Args, "--outdir")
		input := c.Args[len(c.Args)-1]
		return write(filepath.Join(outDir, stem(input)+"."+format), "converted "+format)
	case "pdflatex":
		dir := c.Dir
		if v := argWithPrefix(c.Args, "-output-directory="); v != "" {
			dir = v
		}
		return write(filepath.Join(dir, stem(c.Args[len(c.Args)-1])+".pdf"), "%PDF-1.4")
	case "inkscape":
		return write(argWithPrefix(c.Args, "--export-filename="), "<svg/>")
	case "cwebp":
		return write(argAfter(c.Args, "-o"), "RIFF")
	case "unzip":
		dir := argAfter(c.Args, "-d")
		for rel, content := range f.Archive {
			if err := write(filepath.Join(dir, rel), content); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *FakeRunner) pandoc(c services.Command) error {
	out := argAfter(c.Args, "-o")
	if !filepath.IsAbs(out) && c.Dir != "" {
		out = filepath.Join(c.Dir, out)
	}

	media := argWithPrefix(c.Args, "--extract-media=")
	if media == "" {
		return write(out, "PK docx")
	}

	var b strings.Builder
	b.WriteString("<h1>Title</h1>\n<p>&nbsp;</p>\n<p>Body text</p>\n")
	for _, img := range f.Images {
		p := filepath.Join(media, "media", img)
		if err := write(p, "image-bytes"); err != nil {
			return err
		}
		fmt.Fprintf(&b, "<p><img src=\"%s\" alt=\"\"/></p>\n", p)
	}
	return write(out, b.String())
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func argWithPrefix(args []string, prefix string) string {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func write(p, content string) error {
	if p == "" {
		return fmt.Errorf("fake runner: missing output path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(content), 0o644)
}
