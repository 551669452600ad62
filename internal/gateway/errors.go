package gateway

import (
	"context"
	"errors"

	"vtokiosk/internal/providers/vertex"
)

var (
	// ErrUnauthenticated means the Google session is missing or expired.
	ErrUnauthenticated = vertex.ErrUnauthenticated
	// ErrBridgeParse means the bridge answered with non-JSON.
	ErrBridgeParse = vertex.ErrBridgeParse
	// ErrMissingConfig means a required credential (such as the fal key) is absent.
	ErrMissingConfig = errors.New("gateway: missing configuration")
	// ErrNoImage means the model answered without an image.
	ErrNoImage = errors.New("no image returned by the model")
)

// APIError carries the API's own error message.
type APIError = vertex.APIError

// Unconfigured stands in for a gateway that could not be built. Every
// operation reports Err, which should wrap ErrMissingConfig.
type Unconfigured struct {
	Err error
}

func (u Unconfigured) AnalyzeAttire(ctx context.Context, photo string) AttireFlags {
	return AttireFlags{}
}

func (u Unconfigured) TryOn(ctx context.Context, person, garment string) (string, error) {
	return "", u.Err
}

func (u Unconfigured) ConsultAndSynthesize(ctx context.Context, photo string, cr ConsultRequest) (Consultation, error) {
	return Consultation{}, u.Err
}
