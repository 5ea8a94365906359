package vidgate

import (
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/store"
)

// Aliases so callers of the gateway rarely need to import model directly.
type (
	GenerationRequest = model.GenerationRequest
	Image             = model.Image
	CameraControl     = model.CameraControl
	CameraConfig      = model.CameraConfig
	Task              = model.Task
	TaskStatus        = model.Status
	Modality          = model.Modality
	Quality           = model.Quality
	Provider          = model.Provider

	// TaskStore persists gateway tasks.
	TaskStore = store.TaskStore
	// Locker serializes polls of one task across processes.
	Locker = store.Locker
)

const (
	TaskStatusPending    = model.StatusPending
	TaskStatusSubmitted  = model.StatusSubmitted
	TaskStatusProcessing = model.StatusProcessing
	TaskStatusCompleted  = model.StatusCompleted
	TaskStatusFailed     = model.StatusFailed
)

const (
	ModalityTextToVideo       = model.ModalityTextToVideo
	ModalityImageToVideo      = model.ModalityImageToVideo
	ModalityMultiImageToVideo = model.ModalityMultiImageToVideo
	ModalityVideoExtend       = model.ModalityVideoExtend
)

const (
	QualityStandard = model.QualityStandard
	QualityHigh     = model.QualityHigh
)

const (
	ProviderKling  = model.ProviderKling
	ProviderRunway = model.ProviderRunway
	ProviderDeer   = model.ProviderDeer
)

// ExtendOptions carries the optional fields of an extend request.
type ExtendOptions struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
}
