package models

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var ErrInvalidEvent = errors.New("invalid file confirmed event")

// ResourceKind discriminates the two record types sharing the pipeline.
type ResourceKind string

const (
	KindDeposit ResourceKind = "deposit"
	KindReview  ResourceKind = "review"
)

func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(strings.ToLower(s)) {
	case KindDeposit:
		return KindDeposit, nil
	case KindReview:
		return KindReview, nil
	}
	return "", fmt.Errorf("%w: unknown resource kind %q", ErrInvalidEvent, s)
}

// PathSegment is the public URL segment for the kind.
func (k ResourceKind) PathSegment() string {
	if k == KindReview {
		return "reviews"
	}
	return "deposits"
}

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Export targets an event may request.
const (
	TargetHTML = "html"
	TargetPDF  = "pdf"
)

// FileConfirmedEvent is the queue payload announcing an uploaded file.
type FileConfirmedEvent struct {
	ResourceID    string    `json:"resourceId"`
	ResourceKind  string    `json:"resourceKind"`
	Filename      string    `json:"filename"`
	CommunityTier string    `json:"communityTier,omitempty"`
	Targets       []string  `json:"targets,omitempty"`
	RetryCount    int       `json:"retryCount"`
	MaxRetries    int       `json:"maxRetries"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (e *FileConfirmedEvent) Validate() error {
	if e.ResourceID == "" {
		return fmt.Errorf("%w: missing resourceId", ErrInvalidEvent)
	}
	if e.Filename == "" || path.Base(e.Filename) != e.Filename {
		return fmt.Errorf("%w: bad filename %q", ErrInvalidEvent, e.Filename)
	}
	if strings.ContainsAny(e.ResourceID, "/\\") {
		return fmt.Errorf("%w: bad resourceId %q", ErrInvalidEvent, e.ResourceID)
	}
	if _, err := ParseResourceKind(e.ResourceKind); err != nil {
		return err
	}
	for _, t := range e.Targets {
		if t != TargetHTML && t != TargetPDF {
			return fmt.Errorf("%w: unknown target %q", ErrInvalidEvent, t)
		}
	}
	return nil
}

// Wants reports whether the event requests the given export target.
// An event without targets requests every export.
func (e *FileConfirmedEvent) Wants(target string) bool {
	if len(e.Targets) == 0 {
		return true
	}
	for _, t := range e.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// ConversionJob is one conversion run for one resource. It lives as long
// as the run and is never persisted.
type ConversionJob struct {
	RunID         string
	ResourceID    string
	Kind          ResourceKind
	CommunityTier Tier
	SourceKey     string
	WorkspaceRoot string
	Filename      string
}

// NewConversionJob derives a job from a validated event.
func NewConversionJob(runID string, ev *FileConfirmedEvent, workspaceRoot string) (*ConversionJob, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	kind, _ := ParseResourceKind(ev.ResourceKind)
	tier := TierFree
	if strings.EqualFold(ev.CommunityTier, string(TierPremium)) {
		tier = TierPremium
	}
	job := &ConversionJob{
		RunID:         runID,
		ResourceID:    ev.ResourceID,
		Kind:          kind,
		CommunityTier: tier,
		WorkspaceRoot: workspaceRoot,
		Filename:      ev.Filename,
	}
	job.SourceKey = job.RootPrefix() + ev.Filename
	return job, nil
}

// RootPrefix is the object store prefix owning everything of the resource.
func (j *ConversionJob) RootPrefix() string {
	if j.Kind == KindReview {
		return "reviews/" + j.ResourceID + "/"
	}
	return j.ResourceID + "/"
}

func (j *ConversionJob) MediaPrefix() string {
	return j.RootPrefix() + "media/"
}

func (j *ConversionJob) Premium() bool {
	return j.CommunityTier == TierPremium
}

// LockKey identifies the resource for same-resource serialization.
func (j *ConversionJob) LockKey() string {
	return string(j.Kind) + ":" + j.ResourceID
}
