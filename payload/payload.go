// Package payload turns a generation request and its resolved endpoint into
// the exact request body the provider expects.
package payload

import (
	"fmt"

	"github.com/feitianbubu/vidgate/model"
)

// Payload is a provider-ready request body.
type Payload struct {
	Transport   model.TransportKind
	ContentType string
	Body        []byte
	Endpoint    model.ResolvedEndpoint
}

// Build encodes req for ep. Failures are payload_encoding errors naming the
// field and endpoint.
func Build(req *model.GenerationRequest, ep model.ResolvedEndpoint) (*Payload, error) {
	if req == nil {
		return nil, model.NewPayloadEncodingError("request", ep.String(), fmt.Errorf("request is nil"))
	}

	switch ep.Transport {
	case model.TransportMultipart:
		return buildMultipart(req, ep)
	case model.TransportJSON:
		return buildJSON(req, ep)
	default:
		return nil, model.NewPayloadEncodingError("transport", ep.String(),
			fmt.Errorf("unknown transport %q", ep.Transport))
	}
}

func encodingError(field string, ep model.ResolvedEndpoint, err error) error {
	return model.NewPayloadEncodingError(field, ep.String(), err)
}
