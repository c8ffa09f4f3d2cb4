package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"manuscript-converter/models"
)

var ErrConfigParse = errors.New("failed to parse config file")

// fileConfig is the shape of the optional YAML overlay:
//
//	tools:
//	  pandoc: /opt/pandoc/bin/pandoc
//	stages:
//	  media.convert: best-effort
type fileConfig struct {
	Tools  Tools             `yaml:"tools"`
	Stages map[string]string `yaml:"stages"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfigParse, path, err)
	}

	mergeTools(&cfg.Tools, fc.Tools)

	for name, value := range fc.Stages {
		failure, err := models.ParseFailureMode(value)
		if err != nil {
			return fmt.Errorf("%w: stage %q: %w", ErrConfigParse, name, err)
		}
		cfg.Stages[models.Stage(name)] = failure
	}
	return nil
}

func mergeTools(dst *Tools, src Tools) {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Pandoc, src.Pandoc)
	set(&dst.Soffice, src.Soffice)
	set(&dst.PDFLatex, src.PDFLatex)
	set(&dst.Bibtex, src.Bibtex)
	set(&dst.Inkscape, src.Inkscape)
	set(&dst.Mogrify, src.Mogrify)
	set(&dst.Cwebp, src.Cwebp)
	set(&dst.Optipng, src.Optipng)
	set(&dst.Pngquant, src.Pngquant)
	set(&dst.Jpegoptim, src.Jpegoptim)
	set(&dst.Unzip, src.Unzip)
}
