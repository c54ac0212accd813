package httpclient

import (
	"encoding/xml"
	"fmt"
	"mime"
	"strings"

	json "github.com/goccy/go-json"
)

// Serializer encodes request bodies and decodes response bodies for a set
// of media types. The first media type is the one written as Content-Type.
type Serializer interface {
	MediaTypes() []string
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

// JSONSerializer handles application/json using goccy/go-json.
type JSONSerializer struct{}

func (JSONSerializer) MediaTypes() []string {
	return []string{"application/json", "text/json"}
}

func (JSONSerializer) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// XMLSerializer handles application/xml and text/xml.
type XMLSerializer struct{}

func (XMLSerializer) MediaTypes() []string {
	return []string{"application/xml", "text/xml"}
}

func (XMLSerializer) Serialize(v any) ([]byte, error) {
	return xml.Marshal(v)
}

func (XMLSerializer) Deserialize(data []byte, v any) error {
	return xml.Unmarshal(data, v)
}

// TransmissionSettings is the immutable set of serializers a client uses.
// The first serializer is the default for request bodies.
type TransmissionSettings struct {
	serializers []Serializer
}

// NewTransmissionSettings creates settings from the given serializers.
// It returns ErrNoSerializers when none are given.
func NewTransmissionSettings(serializers ...Serializer) (*TransmissionSettings, error) {
	list := make([]Serializer, 0, len(serializers))
	for _, s := range serializers {
		if s != nil && len(s.MediaTypes()) > 0 {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, ErrNoSerializers
	}
	return &TransmissionSettings{serializers: list}, nil
}

// DefaultTransmissionSettings returns JSON as default with XML as fallback.
func DefaultTransmissionSettings() *TransmissionSettings {
	return &TransmissionSettings{serializers: []Serializer{JSONSerializer{}, XMLSerializer{}}}
}

// DefaultSerializer returns the serializer used for object bodies.
func (s *TransmissionSettings) DefaultSerializer() Serializer {
	return s.serializers[0]
}

// DefaultContentType returns the media type of the default serializer.
func (s *TransmissionSettings) DefaultContentType() string {
	return s.serializers[0].MediaTypes()[0]
}

// DeserializableMediaTypes lists every media type a response can be
// decoded from, in serializer order.
func (s *TransmissionSettings) DeserializableMediaTypes() []string {
	var types []string
	for _, ser := range s.serializers {
		types = append(types, ser.MediaTypes()...)
	}
	return types
}

// FindSerializer returns the serializer for a Content-Type header value.
// Parameters such as charset are ignored and the match is case-insensitive.
func (s *TransmissionSettings) FindSerializer(contentType string) (Serializer, bool) {
	mediaType := parseMediaType(contentType)
	if mediaType == "" {
		return nil, false
	}
	for _, ser := range s.serializers {
		for _, mt := range ser.MediaTypes() {
			if strings.EqualFold(mt, mediaType) {
				return ser, true
			}
		}
	}
	return nil, false
}

func (s *TransmissionSettings) serialize(contentType string, v any) ([]byte, string, error) {
	ser := s.DefaultSerializer()
	if contentType != "" {
		found, ok := s.FindSerializer(contentType)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
		}
		ser = found
	} else {
		contentType = ser.MediaTypes()[0]
	}

	data, err := ser.Serialize(v)
	if err != nil {
		return nil, "", fmt.Errorf("httpclient: serialize body as %s: %w", contentType, err)
	}
	return data, contentType, nil
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mediaType
}
