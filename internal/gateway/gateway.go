// Package gateway is the façade over the remote models: attire analysis,
// virtual try-on and the two-stage consult-and-synthesize call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vtokiosk/internal/imaging"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/providers/fal"
	"vtokiosk/internal/providers/vertex"
)

const attireInstruction = "Analyze this person's attire. Detect if they are a Muslimah (wearing a hijab) or if they are wearing sleeveless clothing (bare arms, tank top, or sleeveless shirt). Return ONLY a JSON object with boolean fields: {\"is_muslimah\": true/false, \"is_sleeveless\": true/false}"

// ContentGenerator is the Gemini surface of the Vertex client.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, region, model string, req vertex.GenerateContentRequest) (*vertex.GenerateContentResponse, error)
}

// Predictor is the prediction surface of the Vertex client.
type Predictor interface {
	Predict(ctx context.Context, region, model string, req vertex.PredictRequest) (*vertex.PredictResponse, error)
}

// Synthesizer renders images on the fal queue.
type Synthesizer interface {
	Ready(ctx context.Context) error
	Subscribe(ctx context.Context, app string, input any, out any) error
}

// Model names a model in a region.
type Model struct {
	Region string
	Name   string
}

type Options struct {
	Generator   ContentGenerator
	Predictor   Predictor
	Synthesizer Synthesizer

	Attire  Model
	TryOn   Model
	Consult Model
	FalApp  string

	// Timeout bounds each operation; zero leaves it to the caller's context.
	Timeout time.Duration
	Logger  *infra.Logger
}

type Gateway struct {
	gen     ContentGenerator
	pred    Predictor
	synth   Synthesizer
	attire  Model
	tryOn   Model
	consult Model
	falApp  string
	timeout time.Duration
	logger  *infra.Logger
}

func New(opts Options) (*Gateway, error) {
	if opts.Generator == nil || opts.Predictor == nil {
		return nil, fmt.Errorf("%w: vertex client", ErrMissingConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Gateway{
		gen:     opts.Generator,
		pred:    opts.Predictor,
		synth:   opts.Synthesizer,
		attire:  opts.Attire,
		tryOn:   opts.TryOn,
		consult: opts.Consult,
		falApp:  opts.FalApp,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

func (g *Gateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// AttireFlags is the attire analysis result.
type AttireFlags struct {
	IsMuslimah   bool `json:"is_muslimah"`
	IsSleeveless bool `json:"is_sleeveless"`
}

// AnalyzeAttire classifies the person's attire. It never fails: any error
// yields the all-false flags.
func (g *Gateway) AnalyzeAttire(ctx context.Context, photo string) AttireFlags {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	req := vertex.JSONPrompt(attireInstruction, imaging.MIMEOf(photo), imaging.StripPrefix(photo))
	resp, err := g.gen.GenerateContent(ctx, g.attire.Region, g.attire.Name, req)
	if err != nil {
		g.logger.Warn().Err(err).Msg("attire analysis failed; assuming defaults")
		return AttireFlags{}
	}
	flags, err := parseModelPayload[AttireFlags](resp.Text())
	if err != nil {
		g.logger.Warn().Err(err).Msg("attire analysis unparsable; assuming defaults")
		return AttireFlags{}
	}
	return flags
}

// TryOn renders the garment onto the person. The result is a JPEG data URI.
func (g *Gateway) TryOn(ctx context.Context, person, garment string) (string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	req := vertex.TryOnRequest(imaging.StripPrefix(person), imaging.StripPrefix(garment))
	resp, err := g.pred.Predict(ctx, g.tryOn.Region, g.tryOn.Name, req)
	if err != nil {
		return "", err
	}
	img := resp.FirstImage()
	if img == "" {
		return "", ErrNoImage
	}
	return imaging.WrapBase64("image/jpeg", img), nil
}

// ConsultRequest parameterizes one consult-and-synthesize call.
type ConsultRequest struct {
	// Prompt is the instruction sent with the photo; it must ask for JSON
	// with "edit_prompt" and NoteField.
	Prompt       string
	NoteField    string
	Width        int
	Height       int
	FallbackNote string
}

// Consultation is the consult-and-synthesize outcome. Degraded results echo
// the input photo with the fallback note.
type Consultation struct {
	Image    string `json:"image"`
	Note     string `json:"note"`
	Degraded bool   `json:"degraded"`
}

// ConsultAndSynthesize asks Gemini for an edit prompt and advisory note, then
// renders the collage on fal. Missing credentials and authentication failures
// are returned; any other failure degrades to the echoed photo.
func (g *Gateway) ConsultAndSynthesize(ctx context.Context, photo string, cr ConsultRequest) (Consultation, error) {
	if g.synth == nil {
		return Consultation{}, fmt.Errorf("%w: fal client", ErrMissingConfig)
	}
	if err := g.synth.Ready(ctx); err != nil {
		return Consultation{}, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	ctx, cancel := g.bound(ctx)
	defer cancel()

	result, err := g.consultAndSynthesize(ctx, photo, cr)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrMissingConfig) {
		return Consultation{}, err
	}
	g.logger.Warn().Err(err).Msg("consultation degraded")
	return Consultation{Image: photo, Note: cr.FallbackNote, Degraded: true}, nil
}

func (g *Gateway) consultAndSynthesize(ctx context.Context, photo string, cr ConsultRequest) (Consultation, error) {
	req := vertex.JSONPrompt(cr.Prompt, imaging.MIMEOf(photo), imaging.StripPrefix(photo))
	resp, err := g.gen.GenerateContent(ctx, g.consult.Region, g.consult.Name, req)
	if err != nil {
		return Consultation{}, fmt.Errorf("consult: %w", err)
	}
	fields, err := parseModelPayload[map[string]any](resp.Text())
	if err != nil {
		return Consultation{}, fmt.Errorf("consult: parse: %w", err)
	}
	editPrompt := stringField(fields, "edit_prompt")
	if editPrompt == "" {
		return Consultation{}, errors.New("consult: empty edit_prompt")
	}
	note := stringField(fields, cr.NoteField)
	g.logger.Debug().Str("note", note).Msg("consultation received")

	reference := photo
	if !imaging.IsDataURI(reference) {
		reference = imaging.WrapBase64("image/png", reference)
	}
	var out fal.ImageOutput
	input := fal.EditInput{
		Prompt:               editPrompt,
		ImageURLs:            []string{reference},
		Width:                cr.Width,
		Height:               cr.Height,
		ReturnMediaAsDataURI: true,
	}
	if err := g.synth.Subscribe(ctx, g.falApp, input, &out); err != nil {
		if errors.Is(err, fal.ErrMissingKey) {
			return Consultation{}, fmt.Errorf("%w: %v", ErrMissingConfig, err)
		}
		return Consultation{}, fmt.Errorf("synthesize: %w", err)
	}
	img := strings.TrimSpace(out.First())
	if img == "" {
		return Consultation{}, ErrNoImage
	}
	return Consultation{Image: img, Note: note}, nil
}
