package wizard

import (
	"time"

	"vtokiosk/internal/design"
	"vtokiosk/internal/domain"
)

// Step is a position in a flow's step sequence.
type Step string

const (
	StepPickGarment Step = "pick_garment"
	StepDesign      Step = "design"
	StepCapture     Step = "capture"
	StepResult      Step = "result"
)

// Phase is the sub-state of the Result step.
type Phase string

const (
	PhaseNone    Phase = ""
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseFailure Phase = "failure"
)

// FailureKind classifies a failed generation.
type FailureKind string

const (
	FailureGeneration FailureKind = "generation"
	FailureAuth       FailureKind = "auth"
	FailureConfig     FailureKind = "config"
)

// Affordance is the action offered to the user after a failure.
type Affordance string

const (
	AffordanceRetry       Affordance = "retry"
	AffordanceReauthorize Affordance = "reauthorize"
	AffordanceNone        Affordance = "none"
)

func (k FailureKind) Affordance() Affordance {
	switch k {
	case FailureAuth:
		return AffordanceReauthorize
	case FailureConfig:
		return AffordanceNone
	default:
		return AffordanceRetry
	}
}

type Failure struct {
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	Affordance Affordance  `json:"affordance"`
}

type Result struct {
	Image    string `json:"image,omitempty"`
	Note     string `json:"note,omitempty"`
	Degraded bool   `json:"degraded"`
}

// Snapshot is an immutable copy of a session.
type Snapshot struct {
	ID             string           `json:"id"`
	Flow           domain.Flow      `json:"flow"`
	Locale         string           `json:"locale"`
	Step           Step             `json:"step"`
	Phase          Phase            `json:"phase,omitempty"`
	Garment        string           `json:"garment,omitempty"`
	Elements       []design.Element `json:"elements,omitempty"`
	DesignDocument *design.Document `json:"design_document,omitempty"`
	DesignRaster   string           `json:"design_raster,omitempty"`
	TryOnGarment   string           `json:"tryon_garment,omitempty"`
	Photo          string           `json:"photo,omitempty"`
	Result         *Result          `json:"result,omitempty"`
	ShareURL       string           `json:"share_url,omitempty"`
	Failure        *Failure         `json:"failure,omitempty"`
	Status         string           `json:"status,omitempty"`
	Countdown      int              `json:"countdown,omitempty"`
	Epoch          uint64           `json:"epoch"`
	UpdatedAt      time.Time        `json:"updated_at"`
	// Light is set on event copies whose image payloads were dropped.
	Light bool `json:"light,omitempty"`
}

// Lightweight drops the image payloads so frequent events stay small. The
// full snapshot is fetched with Get.
func (s Snapshot) Lightweight() Snapshot {
	s.DesignRaster = ""
	s.TryOnGarment = ""
	s.Photo = ""
	if s.Result != nil {
		r := *s.Result
		r.Image = ""
		s.Result = &r
	}
	s.Light = true
	return s
}

// Event types published for every session change.
const (
	EventState     = "state"
	EventStatus    = "status"
	EventCountdown = "countdown"
	EventShutter   = "shutter"
	EventShare     = "share"
	EventClosed    = "closed"
)

// Event is what subscribers of a session receive.
type Event struct {
	Type    string   `json:"type"`
	Session Snapshot `json:"session"`
}
