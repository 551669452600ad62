package fal

// EditInput is the seedream edit request.
type EditInput struct {
	Prompt               string   `json:"prompt"`
	ImageURLs            []string `json:"image_urls"`
	Width                int      `json:"width,omitempty"`
	Height               int      `json:"height,omitempty"`
	ReturnMediaAsDataURI bool     `json:"return_media_as_data_uri"`
}

type File struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

// ImageOutput covers both the list and single-image result shapes.
type ImageOutput struct {
	Images []File `json:"images"`
	Image  *File  `json:"image"`
}

// First returns the first image URL, or "".
func (o ImageOutput) First() string {
	if len(o.Images) > 0 && o.Images[0].URL != "" {
		return o.Images[0].URL
	}
	if o.Image != nil {
		return o.Image.URL
	}
	return ""
}
