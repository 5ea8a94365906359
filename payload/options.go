package payload

import "github.com/feitianbubu/vidgate/model"

// Wire field names shared by the builders.
const (
	FieldPrompt         = "prompt"
	FieldNegativePrompt = "negative_prompt"
	FieldCfg            = "cfg"
	FieldAspectRatio    = "aspect_ratio"
	FieldCameraType     = "camera_type"
	FieldCameraValue    = "camera_value"
	FieldInputImage     = "input_image"
	FieldTailImage      = "tail_image"
	FieldImageList      = "image_list"
	FieldTaskID         = "task_id"

	FieldInitImage       = "init_image"
	FieldTextPrompt      = "text_prompt"
	FieldSeconds         = "seconds"
	FieldSeed            = "seed"
	FieldImageAsEndFrame = "image_as_end_frame"

	FieldModelName     = "model_name"
	FieldMode          = "mode"
	FieldDuration      = "duration"
	FieldCfgScale      = "cfg_scale"
	FieldCallbackURL   = "callback_url"
	FieldCameraControl = "camera_control"
)

// Defaults is the recognized-options table. Every default the builders apply
// comes from here.
var Defaults = map[string]string{
	FieldCfg:            "0.5",
	FieldAspectRatio:    "1:1",
	FieldNegativePrompt: "",
	FieldCameraValue:    "0",
}

// scalar is one coerced form field.
type scalar struct {
	name  string
	value string
}

// fieldSet collects scalars in insertion order. A field whose caller value
// and default are both empty is dropped.
type fieldSet []scalar

func (fs *fieldSet) add(name, value string) {
	if value == "" {
		value = Defaults[name]
	}
	if value == "" {
		return
	}
	*fs = append(*fs, scalar{name: name, value: value})
}

func (fs fieldSet) get(name string) string {
	for _, s := range fs {
		if s.name == name {
			return s.value
		}
	}
	return ""
}

// generationFields returns the common Kling-style scalar options.
func generationFields(req *model.GenerationRequest) fieldSet {
	var fs fieldSet
	fs.add(FieldPrompt, req.Prompt)
	fs.add(FieldNegativePrompt, req.NegativePrompt)
	fs.add(FieldCfg, req.CfgScale)
	fs.add(FieldAspectRatio, req.AspectRatio)
	if cc := req.CameraControl; cc != nil && cc.Type != "" {
		fs.add(FieldCameraType, cc.Type)
		fs.add(FieldCameraValue, cc.Value)
	}
	return fs
}
