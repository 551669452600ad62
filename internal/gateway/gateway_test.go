package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"vtokiosk/internal/providers/fal"
	"vtokiosk/internal/providers/vertex"
)

type stubVertex struct {
	text      string
	genErr    error
	genCalls  []vertex.GenerateContentRequest
	pred      *vertex.PredictResponse
	predErr   error
	predCalls []vertex.PredictRequest
	deadline  bool
}

func (s *stubVertex) GenerateContent(ctx context.Context, region, model string, req vertex.GenerateContentRequest) (*vertex.GenerateContentResponse, error) {
	s.genCalls = append(s.genCalls, req)
	if _, ok := ctx.Deadline(); ok {
		s.deadline = true
	}
	if s.genErr != nil {
		return nil, s.genErr
	}
	return &vertex.GenerateContentResponse{Candidates: []vertex.Candidate{{Content: vertex.Content{Parts: []vertex.Part{{Text: s.text}}}}}}, nil
}

func (s *stubVertex) Predict(ctx context.Context, region, model string, req vertex.PredictRequest) (*vertex.PredictResponse, error) {
	s.predCalls = append(s.predCalls, req)
	if s.predErr != nil {
		return nil, s.predErr
	}
	return s.pred, nil
}

type stubFal struct {
	readyErr error
	err      error
	url      string
	input    fal.EditInput
	called   bool
}

func (s *stubFal) Ready(ctx context.Context) error { return s.readyErr }

func (s *stubFal) Subscribe(ctx context.Context, app string, input any, out any) error {
	s.called = true
	s.input = input.(fal.EditInput)
	if s.err != nil {
		return s.err
	}
	*(out.(*fal.ImageOutput)) = fal.ImageOutput{Images: []fal.File{{URL: s.url}}}
	return nil
}

func newGateway(t *testing.T, v *stubVertex, f *stubFal) *Gateway {
	t.Helper()
	opts := Options{Generator: v, Predictor: v, FalApp: "fal-ai/bytedance/seedream/v4.5/edit", Timeout: time.Minute}
	if f != nil {
		opts.Synthesizer = f
	}
	g, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

const photo = "data:image/jpeg;base64,UEhPVE8="

var grooming = ConsultRequest{
	Prompt:       "be a master groomer",
	NoteField:    "barber_note",
	Width:        1280,
	Height:       720,
	FallbackNote: "[CONSULTATION MODE] busy",
}

func TestAnalyzeAttireParsesFlags(t *testing.T) {
	v := &stubVertex{text: "```json\n{\"is_muslimah\": true, \"is_sleeveless\": false}\n```"}
	flags := newGateway(t, v, nil).AnalyzeAttire(context.Background(), photo)
	if !flags.IsMuslimah || flags.IsSleeveless {
		t.Fatalf("flags = %+v", flags)
	}
	part := v.genCalls[0].Contents[0].Parts[1].InlineData
	if part.Data != "UEhPVE8=" || part.MimeType != "image/jpeg" {
		t.Fatalf("photo sent as %+v", part)
	}
	if !v.deadline {
		t.Fatal("call should carry the gateway deadline")
	}
}

func TestAnalyzeAttireNeverFails(t *testing.T) {
	for name, v := range map[string]*stubVertex{
		"transport": {genErr: errors.New("connection reset")},
		"auth":      {genErr: ErrUnauthenticated},
		"garbage":   {text: "I cannot help with that"},
	} {
		t.Run(name, func(t *testing.T) {
			if flags := newGateway(t, v, nil).AnalyzeAttire(context.Background(), photo); flags != (AttireFlags{}) {
				t.Fatalf("flags = %+v, want all false", flags)
			}
		})
	}
}

func TestTryOnWrapsResultAsJPEG(t *testing.T) {
	v := &stubVertex{pred: &vertex.PredictResponse{Predictions: []vertex.Prediction{{BytesBase64Encoded: "UkVT"}}}}
	img, err := newGateway(t, v, nil).TryOn(context.Background(), photo, "data:image/png;base64,R0FS")
	if err != nil {
		t.Fatalf("TryOn: %v", err)
	}
	if img != "data:image/jpeg;base64,UkVT" {
		t.Fatalf("image = %q", img)
	}
	inst := v.predCalls[0].Instances[0]
	if inst.PersonImage.Image.BytesBase64Encoded != "UEhPVE8=" || inst.ProductImages[0].Image.BytesBase64Encoded != "R0FS" {
		t.Fatalf("prefixes not stripped: %+v", inst)
	}
}

func TestTryOnErrors(t *testing.T) {
	apiErr := &APIError{Status: 400, Message: "Person image is required."}
	v := &stubVertex{predErr: apiErr}
	_, err := newGateway(t, v, nil).TryOn(context.Background(), photo, photo)
	if err == nil || err.Error() != "Person image is required." {
		t.Fatalf("err = %v, want verbatim API message", err)
	}
	if len(v.predCalls) != 1 {
		t.Fatalf("TryOn must not retry, got %d calls", len(v.predCalls))
	}

	v = &stubVertex{pred: &vertex.PredictResponse{}}
	if _, err := newGateway(t, v, nil).TryOn(context.Background(), photo, photo); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v, want ErrNoImage", err)
	}
}

func TestConsultAndSynthesize(t *testing.T) {
	v := &stubVertex{text: `{"edit_prompt":"2x2 collage of fades","barber_note":"A textured crop suits you."}`}
	f := &stubFal{url: "data:image/png;base64,Q09MTEFHRQ=="}
	got, err := newGateway(t, v, f).ConsultAndSynthesize(context.Background(), photo, grooming)
	if err != nil {
		t.Fatalf("ConsultAndSynthesize: %v", err)
	}
	want := Consultation{Image: "data:image/png;base64,Q09MTEFHRQ==", Note: "A textured crop suits you."}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if f.input.Prompt != "2x2 collage of fades" || f.input.Width != 1280 || f.input.Height != 720 || f.input.ImageURLs[0] != photo {
		t.Fatalf("unexpected synth input %+v", f.input)
	}
	if v.genCalls[0].Contents[0].Parts[0].Text != "be a master groomer" {
		t.Fatal("instruction prompt not forwarded")
	}
}

func TestConsultFailsFastWithoutFalKey(t *testing.T) {
	v := &stubVertex{text: `{}`}
	f := &stubFal{readyErr: fal.ErrMissingKey}
	_, err := newGateway(t, v, f).ConsultAndSynthesize(context.Background(), photo, grooming)
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("err = %v, want ErrMissingConfig", err)
	}
	if len(v.genCalls) != 0 {
		t.Fatal("no model call expected without a fal key")
	}

	if _, err := newGateway(t, v, nil).ConsultAndSynthesize(context.Background(), photo, grooming); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("err = %v, want ErrMissingConfig without synthesizer", err)
	}
}

func TestConsultPropagatesAuthFailure(t *testing.T) {
	v := &stubVertex{genErr: ErrUnauthenticated}
	f := &stubFal{}
	_, err := newGateway(t, v, f).ConsultAndSynthesize(context.Background(), photo, grooming)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if f.called {
		t.Fatal("synthesis must not run after an auth failure")
	}
}

func TestConsultDegrades(t *testing.T) {
	degraded := Consultation{Image: photo, Note: grooming.FallbackNote, Degraded: true}
	tests := map[string]struct {
		v *stubVertex
		f *stubFal
	}{
		"synthesis error": {v: &stubVertex{text: `{"edit_prompt":"x","barber_note":"y"}`}, f: &stubFal{err: &fal.APIError{Status: 500}}},
		"no image":        {v: &stubVertex{text: `{"edit_prompt":"x","barber_note":"y"}`}, f: &stubFal{url: ""}},
		"bridge parse":    {v: &stubVertex{genErr: ErrBridgeParse}, f: &stubFal{}},
		"unparsable":      {v: &stubVertex{text: "busy"}, f: &stubFal{}},
		"empty edit":      {v: &stubVertex{text: `{"barber_note":"y"}`}, f: &stubFal{}},
		"api error":       {v: &stubVertex{genErr: &APIError{Status: 429, Message: "Resource exhausted"}}, f: &stubFal{}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := newGateway(t, tc.v, tc.f).ConsultAndSynthesize(context.Background(), photo, grooming)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != degraded {
				t.Fatalf("got %+v, want %+v", got, degraded)
			}
		})
	}
}

func TestUnconfiguredReportsError(t *testing.T) {
	err := fmt.Errorf("%w: vertex project", ErrMissingConfig)
	u := Unconfigured{Err: err}

	if flags := u.AnalyzeAttire(context.Background(), "data:image/jpeg;base64,AA=="); flags != (AttireFlags{}) {
		t.Fatalf("flags = %+v, want defaults", flags)
	}
	if _, got := u.TryOn(context.Background(), "p", "g"); !errors.Is(got, ErrMissingConfig) {
		t.Fatalf("TryOn error = %v, want ErrMissingConfig", got)
	}
	if _, got := u.ConsultAndSynthesize(context.Background(), "p", ConsultRequest{}); !errors.Is(got, ErrMissingConfig) {
		t.Fatalf("Consult error = %v, want ErrMissingConfig", got)
	}
}
