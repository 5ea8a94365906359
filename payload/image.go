package payload

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/feitianbubu/vidgate/model"
)

// image is a decoded input image ready to be written to a payload.
type image struct {
	data        []byte
	contentType string
	extension   string
}

// decodeImage returns the raw bytes of img. Base64 input may carry a data
// URI prefix; its media type is used when the caller gave none.
func decodeImage(img model.Image) (*image, error) {
	data := img.Data
	contentType := img.ContentType

	if len(data) == 0 {
		encoded := img.Base64
		if strings.HasPrefix(encoded, "data:") {
			comma := strings.IndexByte(encoded, ',')
			if comma < 0 {
				return nil, errors.New("malformed data uri")
			}
			meta := encoded[len("data:"):comma]
			if !strings.HasSuffix(meta, ";base64") {
				return nil, errors.New("data uri is not base64 encoded")
			}
			if contentType == "" {
				contentType = strings.TrimSuffix(meta, ";base64")
			}
			encoded = encoded[comma+1:]
		}

		decoded, err := decodeBase64(encoded)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}

	var mime *mimetype.MIME
	if contentType != "" {
		mime = mimetype.Lookup(contentType)
	}
	if mime == nil {
		mime = mimetype.Detect(data)
		if contentType == "" {
			contentType = mime.String()
		}
	}

	return &image{data: data, contentType: contentType, extension: mime.Extension()}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 image")
	}
	return b, nil
}

// filename names a file part after its field and the detected extension.
func (i *image) filename(field string, index int) string {
	name := field
	if index > 0 {
		name = field + "_" + strconv.Itoa(index)
	}
	if i.extension == "" {
		return name + ".bin"
	}
	return name + i.extension
}
