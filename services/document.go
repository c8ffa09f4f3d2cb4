package services

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"manuscript-converter/config"
	"manuscript-converter/models"
)

// pandocReadable lists source formats pandoc converts to DOCX directly.
// Everything else goes through LibreOffice.
var pandocReadable = map[string]bool{
	".tex":      true,
	".odt":      true,
	".rtf":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".epub":     true,
	".txt":      true,
}

type HTMLOutput struct {
	HTMLPath  string
	OutputDir string
}

// DocumentConverter normalizes sources to DOCX and renders DOCX to HTML.
type DocumentConverter struct {
	exec  *Executor
	tools config.Tools
}

func NewDocumentConverter(exec *Executor, tools config.Tools) *DocumentConverter {
	return &DocumentConverter{exec: exec, tools: tools}
}

// Resolve unpacks archive sources and returns the layout of the main
// document inside. Other layouts are returned unchanged.
func (c *DocumentConverter) Resolve(ctx context.Context, l Layout) (Layout, error) {
	if l.Ext() != ".zip" {
		return l, nil
	}
	if err := os.MkdirAll(l.Unzipped, 0o755); err != nil {
		return l, fmt.Errorf("creating %s: %w", l.Unzipped, err)
	}
	err := c.exec.Run(ctx, Command{
		Stage: models.StageUnzip,
		Name:  c.tools.Unzip,
		Args:  []string{"-o", l.Source, "-d", l.Unzipped},
	})
	if err != nil {
		return l, err
	}

	mainDoc, err := findMainDocument(l.Unzipped)
	if err != nil {
		return l, err
	}
	return l.WithSource(mainDoc), nil
}

// findMainDocument picks the TeX file declaring \documentclass, else the
// first DOCX, else the first TeX file.
func findMainDocument(dir string) (string, error) {
	var texFiles, docxFiles []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "__MACOSX") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".tex":
			texFiles = append(texFiles, p)
		case ".docx":
			docxFiles = append(docxFiles, p)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning archive: %w", err)
	}

	for _, p := range texFiles {
		data, err := os.ReadFile(p)
		if err == nil && bytes.Contains(data, []byte(`\documentclass`)) {
			return p, nil
		}
	}
	if len(docxFiles) > 0 {
		return docxFiles[0], nil
	}
	if len(texFiles) > 0 {
		return texFiles[0], nil
	}
	return "", fmt.Errorf("%w: archive contains no document", ErrUnsupportedFormat)
}

// Normalize converts the source to DOCX and returns the DOCX path.
func (c *DocumentConverter) Normalize(ctx context.Context, l Layout) (string, error) {
	ext := l.Ext()
	switch {
	case ext == ".docx":
		return l.Source, nil
	case ext == ".pdf" || ext == ".zip":
		return "", fmt.Errorf("%w: %s has no HTML rendition", ErrUnsupportedFormat, ext)
	}

	if err := l.Ensure(); err != nil {
		return "", err
	}

	var cmd Command
	switch {
	case ext == ".tex":
		// TeX sources resolve \input and \includegraphics relative to their own directory.
		cmd = Command{
			Stage: models.StageNormalize,
			Name:  c.tools.Pandoc,
			Args:  []string{filepath.Base(l.Source), "-o", l.Docx},
			Dir:   filepath.Dir(l.Source),
		}
	case pandocReadable[ext]:
		cmd = Command{
			Stage: models.StageNormalize,
			Name:  c.tools.Pandoc,
			Args:  []string{l.Source, "-o", l.Docx},
		}
	default:
		cmd = sofficeCommand(c.tools, models.StageNormalize, l.Root, "docx", l.Source, l.Conversions)
	}

	if err := c.exec.Run(ctx, cmd); err != nil {
		return "", err
	}
	if !fileExists(l.Docx) {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, l.Docx)
	}
	return l.Docx, nil
}

// ToHTML normalizes the source and renders it to HTML. Embedded images are
// extracted to l.Media by the same pandoc invocation.
func (c *DocumentConverter) ToHTML(ctx context.Context, l Layout) (*HTMLOutput, error) {
	docx, err := c.Normalize(ctx, l)
	if err != nil {
		return nil, err
	}
	if err := l.Ensure(); err != nil {
		return nil, err
	}

	err = c.exec.Run(ctx, Command{
		Stage: models.StageHTML,
		Name:  c.tools.Pandoc,
		Args: []string{
			docx,
			"-f", "docx",
			"-t", "html5",
			"--extract-media=" + l.Conversions,
			"--mathml",
			"-o", l.HTML,
		},
	})
	if err != nil {
		return nil, err
	}
	if !fileExists(l.HTML) {
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, l.HTML)
	}
	return &HTMLOutput{HTMLPath: l.HTML, OutputDir: l.Conversions}, nil
}

// sofficeCommand builds a headless LibreOffice conversion writing into
// outDir. HOME points into the workspace so concurrent runs get separate
// LibreOffice profiles.
func sofficeCommand(tools config.Tools, stage models.Stage, home, format, input, outDir string) Command {
	return Command{
		Stage: stage,
		Name:  tools.Soffice,
		Args:  []string{"--headless", "--convert-to", format, "--outdir", outDir, input},
		Env:   []string{"HOME=" + home},
	}
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
