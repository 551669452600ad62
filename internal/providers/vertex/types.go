package vertex

import "strings"

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type GenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// JSONPrompt builds a single-turn request with an instruction and one inline
// image, asking for a JSON response. data is raw base64 without a data-URI
// prefix.
func JSONPrompt(text, mimeType, data string) GenerateContentRequest {
	return GenerateContentRequest{
		Contents: []Content{{
			Role: "user",
			Parts: []Part{
				{Text: text},
				{InlineData: &InlineData{MimeType: mimeType, Data: data}},
			},
		}},
		GenerationConfig: &GenerationConfig{ResponseMimeType: "application/json"},
	}
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Text returns the concatenated text parts of the first candidate.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type EncodedImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type ImageField struct {
	Image EncodedImage `json:"image"`
}

type TryOnInstance struct {
	PersonImage   ImageField   `json:"personImage"`
	ProductImages []ImageField `json:"productImages"`
}

type TryOnParameters struct {
	PersonGeneration string `json:"personGeneration,omitempty"`
	SafetySettings   string `json:"safetySettings,omitempty"`
	AddWatermark     bool   `json:"addWatermark"`
	SampleCount      int    `json:"sampleCount,omitempty"`
}

type PredictRequest struct {
	Instances  []TryOnInstance `json:"instances"`
	Parameters TryOnParameters `json:"parameters"`
}

// TryOnRequest builds a virtual try-on prediction for one person and one
// product image, both raw base64.
func TryOnRequest(person, product string) PredictRequest {
	return PredictRequest{
		Instances: []TryOnInstance{{
			PersonImage:   ImageField{Image: EncodedImage{BytesBase64Encoded: person}},
			ProductImages: []ImageField{{Image: EncodedImage{BytesBase64Encoded: product}}},
		}},
		Parameters: TryOnParameters{
			PersonGeneration: "allow_all",
			SafetySettings:   "block_few",
			AddWatermark:     false,
		},
	}
}

type Prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	OutputImage        string `json:"outputImage,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// FirstImage returns the base64 image of the first prediction, or "".
func (r *PredictResponse) FirstImage() string {
	if r == nil || len(r.Predictions) == 0 {
		return ""
	}
	p := r.Predictions[0]
	if p.BytesBase64Encoded != "" {
		return p.BytesBase64Encoded
	}
	return p.OutputImage
}
