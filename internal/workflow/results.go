package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Coordinates is a GPS position read from image metadata.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocalImage is the file the user picked, held in memory until reset.
type LocalImage struct {
	Name        string       `json:"name"`
	ContentType string       `json:"content_type"`
	Data        []byte       `json:"-"`
	Width       int          `json:"width,omitempty"`
	Height      int          `json:"height,omitempty"`
	Location    *Coordinates `json:"location,omitempty"`
}

// Size returns the image length in bytes.
func (img LocalImage) Size() int {
	return len(img.Data)
}

func (img LocalImage) clone() LocalImage {
	out := img
	out.Data = cloneSlice(img.Data)
	if img.Location != nil {
		loc := *img.Location
		out.Location = &loc
	}
	return out
}

// UploadResult is what the upload service returns. Data is opaque to the
// workflow and is forwarded to the analysis service unchanged.
type UploadResult struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// Validate rejects results without server data.
func (r UploadResult) Validate() error {
	if err := validate().Struct(r); err != nil {
		return fmt.Errorf("%w: %v", errValidation, err)
	}
	trimmed := bytes.TrimSpace(r.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: upload data is empty", errValidation)
	}
	return nil
}

func (r UploadResult) clone() UploadResult {
	out := r
	out.Data = cloneSlice(r.Data)
	return out
}

// Product is one thing the user could make from the photographed item.
type Product struct {
	Name  string   `json:"name" validate:"required"`
	Items []string `json:"items"`
	Steps []string `json:"steps"`
}

// Location is a nearby recycling site.
type Location struct {
	Name    string `json:"name" validate:"required"`
	MapLink string `json:"mapLink" validate:"omitempty,url"`
}

// AnalysisResult is the reuse and recycling advice for an upload.
type AnalysisResult struct {
	Products  []Product  `json:"products" validate:"dive"`
	Locations []Location `json:"locations" validate:"dive"`
}

// Validate checks the result before it is stored on a submission.
func (r AnalysisResult) Validate() error {
	if err := validate().Struct(r); err != nil {
		return fmt.Errorf("%w: %v", errValidation, err)
	}
	return nil
}

func (r AnalysisResult) clone() AnalysisResult {
	out := AnalysisResult{Locations: cloneSlice(r.Locations)}
	if r.Products != nil {
		out.Products = make([]Product, len(r.Products))
		for i, p := range r.Products {
			out.Products[i] = Product{
				Name:  p.Name,
				Items: cloneSlice(p.Items),
				Steps: cloneSlice(p.Steps),
			}
		}
	}
	return out
}

// cloneSlice copies src, keeping nil and empty distinct so results encode
// exactly as the service sent them.
func cloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	out := make([]T, len(src))
	copy(out, src)
	return out
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func validate() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validatorInst
}
