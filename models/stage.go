package models

import (
	"fmt"
	"strings"
)

// Stage names a group of external tool invocations sharing a failure policy.
type Stage string

const (
	StageUnzip         Stage = "unzip"
	StageNormalize     Stage = "normalize"
	StageHTML          Stage = "html"
	StagePDFOffice     Stage = "pdf.office"
	StagePDFPremium    Stage = "pdf.premium"
	StageTexFirst      Stage = "tex.first"
	StageTexBib        Stage = "tex.bib"
	StageTexFinal      Stage = "tex.final"
	StageMediaConvert  Stage = "media.convert"
	StageMediaCompress Stage = "media.compress"
)

type FailureMode int

const (
	Fatal FailureMode = iota
	BestEffort
)

func (m FailureMode) String() string {
	if m == BestEffort {
		return "best-effort"
	}
	return "fatal"
}

func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return Fatal, nil
	case "best-effort", "besteffort", "best_effort":
		return BestEffort, nil
	}
	return Fatal, fmt.Errorf("unknown failure mode %q", s)
}

// StagePolicy decides whether a failing stage aborts the run.
// Stages missing from the map are fatal.
type StagePolicy map[Stage]FailureMode

func DefaultStagePolicy() StagePolicy {
	return StagePolicy{
		StageUnzip:         Fatal,
		StageNormalize:     Fatal,
		StageHTML:          Fatal,
		StagePDFOffice:     Fatal,
		StagePDFPremium:    Fatal,
		StageTexFirst:      BestEffort,
		StageTexBib:        BestEffort,
		StageTexFinal:      BestEffort,
		StageMediaConvert:  Fatal,
		StageMediaCompress: BestEffort,
	}
}

func (p StagePolicy) Mode(s Stage) FailureMode {
	if m, ok := p[s]; ok {
		return m
	}
	return Fatal
}
