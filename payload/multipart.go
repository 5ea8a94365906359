package payload

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/feitianbubu/vidgate/model"
)

type filePart struct {
	field string
	img   *image
	index int
}

func buildMultipart(req *model.GenerationRequest, ep model.ResolvedEndpoint) (*Payload, error) {
	var (
		fields fieldSet
		files  []filePart
		err    error
	)

	switch ep.Provider {
	case model.ProviderKling:
		if req.Modality == model.ModalityVideoExtend {
			fields = extendFields(req)
			break
		}
		fields = generationFields(req)
		files, err = klingFiles(req, ep)
	case model.ProviderRunway:
		fields, files, err = runwayParts(req, ep)
	default:
		return nil, encodingError("transport", ep, fmt.Errorf("%s does not accept multipart bodies", ep.Provider))
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, encodingError(f.name, ep, err)
		}
	}
	for _, f := range files {
		part, err := w.CreatePart(fileHeader(f.field, f.img.filename(f.field, f.index), f.img.contentType))
		if err != nil {
			return nil, encodingError(f.field, ep, err)
		}
		if _, err := part.Write(f.img.data); err != nil {
			return nil, encodingError(f.field, ep, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, encodingError("body", ep, err)
	}

	return &Payload{
		Transport:   model.TransportMultipart,
		ContentType: w.FormDataContentType(),
		Body:        buf.Bytes(),
		Endpoint:    ep,
	}, nil
}

// extendFields sends only what the caller gave; extend has no defaults.
func extendFields(req *model.GenerationRequest) fieldSet {
	fs := fieldSet{{name: FieldTaskID, value: req.ExtendOfTaskID}}
	if req.Prompt != "" {
		fs = append(fs, scalar{name: FieldPrompt, value: req.Prompt})
	}
	if req.NegativePrompt != "" {
		fs = append(fs, scalar{name: FieldNegativePrompt, value: req.NegativePrompt})
	}
	return fs
}

func klingFiles(req *model.GenerationRequest, ep model.ResolvedEndpoint) ([]filePart, error) {
	var files []filePart
	switch req.Modality {
	case model.ModalityImageToVideo:
		if len(req.InputImages) == 0 {
			return nil, encodingError(FieldInputImage, ep, fmt.Errorf("image is required"))
		}
		img, err := decodeImage(req.InputImages[0])
		if err != nil {
			return nil, encodingError(FieldInputImage, ep, err)
		}
		files = append(files, filePart{field: FieldInputImage, img: img})

		if req.TailImage != nil {
			tail, err := decodeImage(*req.TailImage)
			if err != nil {
				return nil, encodingError(FieldTailImage, ep, err)
			}
			files = append(files, filePart{field: FieldTailImage, img: tail})
		}
	case model.ModalityMultiImageToVideo:
		for i, in := range req.InputImages {
			img, err := decodeImage(in)
			if err != nil {
				return nil, encodingError(fmt.Sprintf("%s[%d]", FieldImageList, i), ep, err)
			}
			files = append(files, filePart{field: FieldImageList, img: img, index: i})
		}
	}
	return files, nil
}

func runwayParts(req *model.GenerationRequest, ep model.ResolvedEndpoint) (fieldSet, []filePart, error) {
	if len(req.InputImages) == 0 {
		return nil, nil, encodingError(FieldInitImage, ep, fmt.Errorf("image is required"))
	}
	img, err := decodeImage(req.InputImages[0])
	if err != nil {
		return nil, nil, encodingError(FieldInitImage, ep, err)
	}

	var fs fieldSet
	fs.add(FieldTextPrompt, req.Prompt)
	if ep.DurationSeconds > 0 {
		fs.add(FieldSeconds, strconv.Itoa(ep.DurationSeconds))
	}
	fs.add(FieldSeed, req.Seed)
	if req.ImageAsEndFrame != nil {
		fs.add(FieldImageAsEndFrame, strconv.FormatBool(*req.ImageAsEndFrame))
	}
	return fs, []filePart{{field: FieldInitImage, img: img}}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileHeader(field, filename, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}
