package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"manuscript-converter/config"
	"manuscript-converter/models"
)

// PremiumConverter is the paid conversion API used for premium communities.
type PremiumConverter interface {
	ConvertToPDF(ctx context.Context, inputPath, outputPath string) error
}

// PDFConverter renders a source document to PDF. The strategy depends on the
// source extension and the community tier.
type PDFConverter struct {
	exec    *Executor
	tools   config.Tools
	premium PremiumConverter
}

func NewPDFConverter(exec *Executor, tools config.Tools, premium PremiumConverter) *PDFConverter {
	return &PDFConverter{exec: exec, tools: tools, premium: premium}
}

// ToPDF returns the absolute path of the generated PDF, which always is
// l.PDF: the source basename with a .pdf extension.
func (c *PDFConverter) ToPDF(ctx context.Context, l Layout, premium bool) (string, error) {
	if err := l.Ensure(); err != nil {
		return "", err
	}

	var err error
	switch ext := l.Ext(); {
	case ext == ".pdf":
		err = copyFile(l.Source, l.PDF)
	case ext == ".tex":
		err = c.tex(ctx, l)
	case ext == ".docx" && premium && c.premium != nil:
		err = c.exec.Outcome(ctx, models.StagePDFPremium, "premium-api", c.premium.ConvertToPDF(ctx, l.Source, l.PDF))
	default:
		err = c.exec.Run(ctx, sofficeCommand(c.tools, models.StagePDFOffice, l.Root, "pdf", l.Source, l.Conversions))
	}
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(l.PDF)
	if statErr != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, l.PDF)
	}
	abs, err := filepath.Abs(l.PDF)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// tex runs pdflatex, bibtex and two more pdflatex passes so references and
// the bibliography resolve. Each step runs in the source directory.
func (c *PDFConverter) tex(ctx context.Context, l Layout) error {
	dir := filepath.Dir(l.Source)
	name := filepath.Base(l.Source)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	steps := []Command{
		{
			Stage: models.StageTexFirst,
			Name:  c.tools.PDFLatex,
			Args:  []string{"-interaction=nonstopmode", name},
			Dir:   dir,
		},
		{
			Stage: models.StageTexBib,
			Name:  c.tools.Bibtex,
			Args:  []string{stem},
			Dir:   dir,
		},
	}
	for i := 0; i < 2; i++ {
		steps = append(steps, Command{
			Stage: models.StageTexFinal,
			Name:  c.tools.PDFLatex,
			Args:  []string{"-interaction=nonstopmode", "-output-directory=" + l.Conversions, name},
			Dir:   dir,
		})
	}

	for _, step := range steps {
		if err := c.exec.Run(ctx, step); err != nil {
			return err
		}
	}

	// Keep the first-pass PDF when both final passes failed.
	firstPass := filepath.Join(dir, stem+".pdf")
	if !fileExists(l.PDF) && fileExists(firstPass) {
		return copyFile(firstPass, l.PDF)
	}
	return nil
}

func copyFile(src, dst string) error {
	if src == dst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
