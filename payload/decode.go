package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"

	"github.com/pkg/errors"

	"github.com/feitianbubu/vidgate/model"
)

// File is a decoded file part or JSON image entry.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Decoded is the field view of a built payload.
type Decoded struct {
	// Fields holds scalar values coerced to strings.
	Fields map[string]string
	// Files holds image parts in body order.
	Files []File
	// Objects holds nested JSON values that are not scalars or image lists.
	Objects map[string]json.RawMessage
}

// Decode parses p back into fields and files.
func Decode(p *Payload) (*Decoded, error) {
	if p == nil {
		return nil, errors.New("payload is nil")
	}
	switch p.Transport {
	case model.TransportMultipart:
		return decodeMultipart(p)
	case model.TransportJSON:
		return decodeJSON(p)
	default:
		return nil, errors.Errorf("unknown transport %q", p.Transport)
	}
}

func decodeMultipart(p *Payload) (*Decoded, error) {
	_, params, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return nil, errors.Wrap(err, "parse content type")
	}

	out := &Decoded{Fields: make(map[string]string)}
	r := multipart.NewReader(bytes.NewReader(p.Body), params["boundary"])
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read part")
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, errors.Wrapf(err, "read part %s", part.FormName())
		}
		if part.FileName() != "" {
			out.Files = append(out.Files, File{
				Field:       part.FormName(),
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Data:        data,
			})
			continue
		}
		out.Fields[part.FormName()] = string(data)
	}
	return out, nil
}

func decodeJSON(p *Payload) (*Decoded, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(p.Body, &raw); err != nil {
		return nil, errors.Wrap(err, "parse json body")
	}

	out := &Decoded{
		Fields:  make(map[string]string),
		Objects: make(map[string]json.RawMessage),
	}
	for name, value := range raw {
		if name == FieldImageList {
			var entries []imageListEntry
			if err := json.Unmarshal(value, &entries); err != nil {
				return nil, errors.Wrap(err, "parse image_list")
			}
			for i, e := range entries {
				data, err := base64.StdEncoding.DecodeString(e.Image)
				if err != nil {
					return nil, errors.Wrapf(err, "decode image_list[%d]", i)
				}
				out.Files = append(out.Files, File{Field: FieldImageList, Data: data})
			}
			continue
		}

		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		switch s := v.(type) {
		case string:
			out.Fields[name] = s
		case float64:
			out.Fields[name] = strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			out.Fields[name] = strconv.FormatBool(s)
		case nil:
		default:
			out.Objects[name] = value
		}
	}
	return out, nil
}

// String renders the decoded payload without image bytes, for logs.
func (d *Decoded) String() string {
	files := make([]string, 0, len(d.Files))
	for _, f := range d.Files {
		files = append(files, fmt.Sprintf("%s(%d bytes)", f.Field, len(f.Data)))
	}
	return fmt.Sprintf("fields=%v files=%v", d.Fields, files)
}
