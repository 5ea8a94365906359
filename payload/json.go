package payload

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/feitianbubu/vidgate/model"
)

type imageListEntry struct {
	Image string `json:"image"`
}

type klingJSONBody struct {
	Prompt         string           `json:"prompt,omitempty"`
	NegativePrompt string           `json:"negative_prompt,omitempty"`
	Cfg            string           `json:"cfg,omitempty"`
	AspectRatio    string           `json:"aspect_ratio,omitempty"`
	CameraType     string           `json:"camera_type,omitempty"`
	CameraValue    string           `json:"camera_value,omitempty"`
	ImageList      []imageListEntry `json:"image_list,omitempty"`
}

type deerCameraControl struct {
	Type   string              `json:"type"`
	Config *model.CameraConfig `json:"config,omitempty"`
}

type deerBody struct {
	ModelName      string             `json:"model_name,omitempty"`
	Prompt         string             `json:"prompt"`
	NegativePrompt string             `json:"negative_prompt,omitempty"`
	CfgScale       float64            `json:"cfg_scale"`
	Mode           string             `json:"mode,omitempty"`
	AspectRatio    string             `json:"aspect_ratio,omitempty"`
	Duration       string             `json:"duration,omitempty"`
	CallbackURL    string             `json:"callback_url,omitempty"`
	CameraControl  *deerCameraControl `json:"camera_control,omitempty"`
}

func buildJSON(req *model.GenerationRequest, ep model.ResolvedEndpoint) (*Payload, error) {
	var (
		body any
		err  error
	)
	switch ep.Provider {
	case model.ProviderKling:
		body, err = klingJSON(req, ep)
	case model.ProviderDeer:
		body, err = deerJSON(req, ep)
	default:
		return nil, encodingError("transport", ep, fmt.Errorf("%s does not accept json bodies", ep.Provider))
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, encodingError("body", ep, err)
	}
	return &Payload{
		Transport:   model.TransportJSON,
		ContentType: "application/json",
		Body:        data,
		Endpoint:    ep,
	}, nil
}

func klingJSON(req *model.GenerationRequest, ep model.ResolvedEndpoint) (*klingJSONBody, error) {
	fs := generationFields(req)
	body := &klingJSONBody{
		Prompt:         fs.get(FieldPrompt),
		NegativePrompt: fs.get(FieldNegativePrompt),
		Cfg:            fs.get(FieldCfg),
		AspectRatio:    fs.get(FieldAspectRatio),
		CameraType:     fs.get(FieldCameraType),
		CameraValue:    fs.get(FieldCameraValue),
	}

	for i, in := range req.InputImages {
		img, err := decodeImage(in)
		if err != nil {
			return nil, encodingError(fmt.Sprintf("%s[%d]", FieldImageList, i), ep, err)
		}
		body.ImageList = append(body.ImageList, imageListEntry{
			Image: base64.StdEncoding.EncodeToString(img.data),
		})
	}
	return body, nil
}

func deerJSON(req *model.GenerationRequest, ep model.ResolvedEndpoint) (*deerBody, error) {
	if len(req.InputImages) > 0 {
		return nil, encodingError(FieldImageList, ep, fmt.Errorf("endpoint takes no images"))
	}

	var fs fieldSet
	fs.add(FieldCfg, req.CfgScale)
	cfg, err := strconv.ParseFloat(fs.get(FieldCfg), 64)
	if err != nil {
		return nil, encodingError(FieldCfgScale, ep, err)
	}
	fs.add(FieldAspectRatio, req.AspectRatio)

	body := &deerBody{
		ModelName:      ep.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		CfgScale:       cfg,
		Mode:           ep.Mode,
		AspectRatio:    fs.get(FieldAspectRatio),
		CallbackURL:    req.CallbackURL,
	}
	if ep.DurationSeconds > 0 {
		body.Duration = strconv.Itoa(ep.DurationSeconds)
	}
	if cc := req.CameraControl; cc != nil && cc.Type != "" {
		body.CameraControl = &deerCameraControl{Type: cc.Type}
		if cfg := cc.Config; cfg != nil && !cameraConfigEmpty(cfg) {
			c := *cfg
			body.CameraControl.Config = &c
		}
	}
	return body, nil
}

func cameraConfigEmpty(c *model.CameraConfig) bool {
	return c.Horizontal == nil && c.Vertical == nil && c.Pan == nil &&
		c.Tilt == nil && c.Roll == nil && c.Zoom == nil
}
