// Package model holds the domain types shared by the resolver, the payload
// builder, the provider adapters and the task orchestrator.
package model

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Modality is the input kind of a generation request.
type Modality string

const (
	ModalityTextToVideo       Modality = "TEXT_TO_VIDEO"
	ModalityImageToVideo      Modality = "IMAGE_TO_VIDEO"
	ModalityMultiImageToVideo Modality = "MULTI_IMAGE_TO_VIDEO"
	ModalityVideoExtend       Modality = "VIDEO_EXTEND"
)

// IsImageBased reports whether the modality consumes input images.
func (m Modality) IsImageBased() bool {
	return m == ModalityImageToVideo || m == ModalityMultiImageToVideo
}

// Quality is the requested quality tier.
type Quality string

const (
	QualityStandard Quality = "STANDARD"
	QualityHigh     Quality = "HIGH"
)

// MaxInputImages is the largest image list any endpoint accepts.
const MaxInputImages = 4

// Image is an accepted input image. Exactly one of Data and Base64 is set;
// Base64 may carry a data URI prefix.
type Image struct {
	Data        []byte `json:"-"`
	Base64      string `json:"base64,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (i Image) validate(field string) error {
	switch {
	case len(i.Data) == 0 && i.Base64 == "":
		return NewValidationError(field, "image is empty")
	case len(i.Data) > 0 && i.Base64 != "":
		return NewValidationError(field, "set either raw data or base64, not both")
	}
	return nil
}

// CameraConfig holds the numeric sub-fields of a structured camera motion.
// Nil fields are not sent.
type CameraConfig struct {
	Horizontal *float64 `json:"horizontal,omitempty"`
	Vertical   *float64 `json:"vertical,omitempty"`
	Pan        *float64 `json:"pan,omitempty"`
	Tilt       *float64 `json:"tilt,omitempty"`
	Roll       *float64 `json:"roll,omitempty"`
	Zoom       *float64 `json:"zoom,omitempty"`
}

// CameraControl describes camera motion. Multipart providers take Type and
// Value; structured providers take Type and Config.
type CameraControl struct {
	Type   string        `json:"type" validate:"required"`
	Value  string        `json:"value,omitempty" validate:"omitempty,numeric"`
	Config *CameraConfig `json:"config,omitempty"`
}

// GenerationRequest is the normalized, caller-constructed request. It must
// not be modified after it is handed to Submit.
type GenerationRequest struct {
	Modality       Modality `json:"modality" validate:"required,oneof=TEXT_TO_VIDEO IMAGE_TO_VIDEO MULTI_IMAGE_TO_VIDEO VIDEO_EXTEND"`
	Prompt         string   `json:"prompt,omitempty" validate:"max=2500"`
	NegativePrompt string   `json:"negative_prompt,omitempty" validate:"max=2500"`

	InputImages []Image `json:"input_images,omitempty" validate:"max=4"`
	TailImage   *Image  `json:"tail_image,omitempty"`

	ModelFamily     string         `json:"model_family" validate:"required"`
	Quality         Quality        `json:"quality,omitempty" validate:"omitempty,oneof=STANDARD HIGH"`
	DurationSeconds int            `json:"duration_seconds,omitempty" validate:"omitempty,oneof=5 10"`
	AspectRatio     string         `json:"aspect_ratio,omitempty"`
	CameraControl   *CameraControl `json:"camera_control,omitempty"`
	CfgScale        string         `json:"cfg_scale,omitempty"`

	ExtendOfTaskID string `json:"extend_of_task_id,omitempty"`

	Seed            string `json:"seed,omitempty" validate:"omitempty,numeric"`
	ImageAsEndFrame *bool  `json:"image_as_end_frame,omitempty"`
	CallbackURL     string `json:"callback_url,omitempty" validate:"omitempty,url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// EffectiveQuality returns the quality tier with the STANDARD default applied.
func (r *GenerationRequest) EffectiveQuality() Quality {
	if r.Quality == "" {
		return QualityStandard
	}
	return r.Quality
}

// EffectiveAspectRatio returns the aspect ratio with the 1:1 default applied.
func (r *GenerationRequest) EffectiveAspectRatio() string {
	if r.AspectRatio == "" {
		return "1:1"
	}
	return r.AspectRatio
}

// Validate checks field constraints and the modality invariants.
func (r *GenerationRequest) Validate() error {
	if r == nil {
		return NewValidationError("request", "request cannot be nil")
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(fe.Field(), fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
		return NewValidationError("request", err.Error())
	}

	if _, err := ClassifyAspectRatio(r.AspectRatio); err != nil {
		return err
	}

	switch r.Modality {
	case ModalityTextToVideo:
		if strings.TrimSpace(r.Prompt) == "" {
			return NewValidationError("prompt", "prompt is required")
		}
		if len(r.InputImages) > 0 {
			return NewValidationError("input_images", "text-to-video takes no images")
		}
	case ModalityImageToVideo:
		if len(r.InputImages) != 1 {
			return NewValidationError("input_images", "image-to-video takes exactly one image")
		}
	case ModalityMultiImageToVideo:
		if len(r.InputImages) == 0 {
			return NewValidationError("input_images", "at least one image is required")
		}
	case ModalityVideoExtend:
		if r.ExtendOfTaskID == "" {
			return NewValidationError("extend_of_task_id", "extend requires the source task id")
		}
		if strings.TrimSpace(r.Prompt) == "" {
			return NewValidationError("prompt", "prompt is required")
		}
		if len(r.InputImages) > 0 {
			return NewValidationError("input_images", "extend takes no images")
		}
	}

	if r.Modality != ModalityVideoExtend && r.ExtendOfTaskID != "" {
		return NewValidationError("extend_of_task_id", "only valid for VIDEO_EXTEND")
	}
	if r.TailImage != nil {
		if r.Modality != ModalityImageToVideo {
			return NewValidationError("tail_image", "only valid for IMAGE_TO_VIDEO")
		}
		if err := r.TailImage.validate("tail_image"); err != nil {
			return err
		}
	}
	for i, img := range r.InputImages {
		if err := img.validate(fmt.Sprintf("input_images[%d]", i)); err != nil {
			return err
		}
	}

	if r.CfgScale != "" {
		cfg, err := strconv.ParseFloat(r.CfgScale, 64)
		if err != nil || cfg < 0 || cfg > 1 {
			return NewValidationError("cfg_scale", "must be a number between 0 and 1")
		}
	}
	return nil
}

// ClassifyAspectRatio bins an aspect ratio token for routing. An empty ratio
// is the 1:1 default.
func ClassifyAspectRatio(ratio string) (AspectClass, error) {
	switch ratio {
	case "", "1:1":
		return AspectSquare, nil
	case "16:9", "9:16":
		return AspectWidescreen, nil
	default:
		return "", NewValidationError("aspect_ratio", fmt.Sprintf("unsupported aspect ratio %q", ratio))
	}
}
