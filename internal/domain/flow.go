package domain

import (
	"fmt"
	"strings"
)

// Flow identifies one of the kiosk experiences.
type Flow string

const (
	FlowWardrobe Flow = "wardrobe"
	FlowGrooming Flow = "grooming"
	FlowGlam     Flow = "glam"
)

// ParseFlow accepts the flow names used by the kiosk front end.
func ParseFlow(raw string) (Flow, error) {
	switch f := Flow(strings.ToLower(strings.TrimSpace(raw))); f {
	case FlowWardrobe, FlowGrooming, FlowGlam:
		return f, nil
	case "barber":
		return FlowGrooming, nil
	default:
		return "", fmt.Errorf("%w: unknown flow %q", ErrInvalidInput, raw)
	}
}

// Consults reports whether the flow uses the consult-and-synthesize pipeline.
func (f Flow) Consults() bool {
	return f == FlowGrooming || f == FlowGlam
}
