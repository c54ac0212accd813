package httpclient

import (
	"bytes"
	"io"

	"github.com/kroma-labs/restkit/resource"
)

// RequestBody is a strategy for producing the body of a request.
//
// Variants:
//   - NoBody: empty body
//   - ObjectBody: a value encoded by a Serializer
//   - ByteArrayBody: raw bytes with a declared content type
//   - FileUploadBody: multipart/form-data with one part per file
type RequestBody interface {
	// ContentType is the declared content type. ObjectBody returns "" until
	// a serializer is chosen, unless a media type was forced.
	ContentType() string

	// ConsumesResourceParameters reports whether the body can supply values
	// for unresolved segment tokens.
	ConsumesResourceParameters() bool

	// ResourceValues returns the values the body supplies, or nil.
	ResourceValues() *resource.Values

	// Serialize produces the wire form of the body.
	Serialize(settings *TransmissionSettings) (SerializedBody, error)
}

// SerializedBody is the wire form of a RequestBody.
type SerializedBody struct {
	// ContentType is written as the Content-Type header when non-empty.
	ContentType string

	// ContentLength is the exact size in bytes, or -1 when unknown.
	ContentLength int64

	// Reader yields the body. Nil for an empty body.
	Reader io.Reader
}

// replayable is implemented by bodies that can be serialized more than once
// with the same result.
type replayable interface {
	Replayable() bool
}

func isReplayable(body RequestBody) bool {
	if r, ok := body.(replayable); ok {
		return r.Replayable()
	}
	return false
}

type noBody struct{}

// NoBody returns the empty body.
func NoBody() RequestBody {
	return noBody{}
}

func (noBody) ContentType() string { return "" }
func (noBody) ConsumesResourceParameters() bool { return false }
func (noBody) ResourceValues() *resource.Values { return nil }
func (noBody) Replayable() bool { return true }
func (noBody) Serialize(*TransmissionSettings) (SerializedBody, error) {
	return SerializedBody{}, nil
}

type objectBody struct {
	payload     any
	contentType string
}

// ObjectBody encodes payload with the client's default serializer.
//
// When payload implements resource.Valuer, its values fill segment tokens
// the call left unresolved:
//
//	client.Request("UpdateCompany").
//	    Body(company). // company.ResourceValues() supplies :id
//	    Put(ctx, "company/:id")
func ObjectBody(payload any) RequestBody {
	return &objectBody{payload: payload}
}

// ObjectBodyAs encodes payload with the serializer registered for
// contentType instead of the default one.
func ObjectBodyAs(contentType string, payload any) RequestBody {
	return &objectBody{payload: payload, contentType: contentType}
}

func (b *objectBody) ContentType() string { return b.contentType }

func (b *objectBody) ConsumesResourceParameters() bool {
	_, ok := b.payload.(resource.Valuer)
	return ok
}

func (b *objectBody) ResourceValues() *resource.Values {
	if v, ok := b.payload.(resource.Valuer); ok {
		return v.ResourceValues()
	}
	return nil
}

func (b *objectBody) Replayable() bool { return true }

func (b *objectBody) Serialize(settings *TransmissionSettings) (SerializedBody, error) {
	if settings == nil {
		settings = DefaultTransmissionSettings()
	}
	data, contentType, err := settings.serialize(b.contentType, b.payload)
	if err != nil {
		return SerializedBody{}, err
	}
	return SerializedBody{
		ContentType:   contentType,
		ContentLength: int64(len(data)),
		Reader:        bytes.NewReader(data),
	}, nil
}

type byteArrayBody struct {
	contentType string
	data        []byte
}

// ByteArrayBody sends data as is. An empty content type defaults to
// application/octet-stream.
func ByteArrayBody(contentType string, data []byte) RequestBody {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &byteArrayBody{contentType: contentType, data: data}
}

func (b *byteArrayBody) ContentType() string { return b.contentType }
func (b *byteArrayBody) ConsumesResourceParameters() bool { return false }
func (b *byteArrayBody) ResourceValues() *resource.Values { return nil }
func (b *byteArrayBody) Replayable() bool { return true }

func (b *byteArrayBody) Serialize(*TransmissionSettings) (SerializedBody, error) {
	return SerializedBody{
		ContentType:   b.contentType,
		ContentLength: int64(len(b.data)),
		Reader:        bytes.NewReader(b.data),
	}, nil
}
