package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"manuscript-converter/config"
	"manuscript-converter/models"
)

// Only images named by pandoc's extractor are compressed.
var (
	pngPattern  = regexp.MustCompile(`^image\d+\.png$`)
	jpegPattern = regexp.MustCompile(`^image\d+\.(jpeg|jpg)$`)
)

// MediaTranscoder turns extracted images into web-safe, compressed files.
type MediaTranscoder struct {
	exec        *Executor
	tools       config.Tools
	jpegMaxSize string
}

func NewMediaTranscoder(exec *Executor, tools config.Tools, jpegMaxSize string) *MediaTranscoder {
	return &MediaTranscoder{exec: exec, tools: tools, jpegMaxSize: jpegMaxSize}
}

// Transcode processes every file under l.Media. A missing media directory
// means the document had no images and yields no assets.
func (t *MediaTranscoder) Transcode(ctx context.Context, l Layout, remotePrefix string) ([]models.MediaAsset, error) {
	files, err := listFiles(l.Media)
	if err != nil {
		return nil, err
	}

	assets := make([]models.MediaAsset, 0, len(files))
	for _, p := range files {
		asset := models.MediaAsset{LocalPath: p}

		if err := t.convert(ctx, l, &asset); err != nil {
			return nil, err
		}
		if !asset.Converted {
			if err := t.compress(ctx, asset.LocalPath); err != nil {
				return nil, err
			}
		}

		rel, err := filepath.Rel(l.Media, asset.LocalPath)
		if err != nil {
			return nil, err
		}
		asset.RemoteKey = remotePrefix + filepath.ToSlash(rel)
		assets = append(assets, asset)
	}
	return assets, nil
}

// convert replaces a legacy image with its web format. The original is
// removed once the converted file exists.
func (t *MediaTranscoder) convert(ctx context.Context, l Layout, asset *models.MediaAsset) error {
	src := asset.LocalPath
	out := models.WebImagePath(src)
	if out == src {
		return nil
	}

	var steps []Command
	switch strings.ToLower(filepath.Ext(src)) {
	case ".emf":
		steps = []Command{{
			Stage: models.StageMediaConvert,
			Name:  t.tools.Inkscape,
			Args:  []string{src, "--export-type=svg", "--export-filename=" + out},
		}}
	case ".wmf":
		steps = []Command{
			sofficeCommand(t.tools, models.StageMediaConvert, l.Root, "png", src, filepath.Dir(src)),
			{
				Stage: models.StageMediaConvert,
				Name:  t.tools.Mogrify,
				Args:  []string{"-trim", "+repage", out},
			},
		}
	case ".tiff", ".tif":
		steps = []Command{{
			Stage: models.StageMediaConvert,
			Name:  t.tools.Cwebp,
			Args:  []string{"-lossless", src, "-o", out},
		}}
	}

	for _, step := range steps {
		if err := t.exec.Run(ctx, step); err != nil {
			return err
		}
	}

	// A best-effort failure leaves the original in place.
	if !fileExists(out) {
		return nil
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing superseded %s: %w", src, err)
	}
	asset.LocalPath = out
	asset.Converted = true
	return nil
}

// compress shrinks PNG and JPEG files in place. The executor drops
// best-effort failures, so only fatal ones and timeouts are returned.
func (t *MediaTranscoder) compress(ctx context.Context, p string) error {
	name := filepath.Base(p)

	var steps []Command
	switch {
	case pngPattern.MatchString(name):
		steps = []Command{
			{
				Stage: models.StageMediaCompress,
				Name:  t.tools.Optipng,
				Args:  []string{"-fix", "-quiet", p},
			},
			{
				Stage: models.StageMediaCompress,
				Name:  t.tools.Pngquant,
				Args:  []string{"--speed", "10", "--quality", "65-90", "--ext", ".png", "--force", p},
			},
		}
	case jpegPattern.MatchString(name):
		steps = []Command{{
			Stage: models.StageMediaCompress,
			Name:  t.tools.Jpegoptim,
			Args:  []string{"--strip-all", "--size=" + t.jpegMaxSize, p},
		}}
	}

	for _, step := range steps {
		if err := t.exec.Run(ctx, step); err != nil {
			return fmt.Errorf("compressing %s: %w", name, err)
		}
	}
	return nil
}

// listFiles returns the regular files under dir in lexical order, or nil
// when dir does not exist.
func listFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return files, nil
}
