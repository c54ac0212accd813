package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainTextSerializer struct{}

func (plainTextSerializer) MediaTypes() []string { return []string{"text/plain"} }

func (plainTextSerializer) Serialize(v any) ([]byte, error) {
	return []byte(v.(string)), nil
}

func (plainTextSerializer) Deserialize(data []byte, v any) error {
	*(v.(*string)) = string(data)
	return nil
}

func TestNewTransmissionSettings(t *testing.T) {
	tests := []struct {
		name            string
		serializers     []Serializer
		wantContentType string
		wantMediaTypes  []string
		wantErr         error
	}{
		{
			name:    "given no serializers, then ErrNoSerializers",
			wantErr: ErrNoSerializers,
		},
		{
			name:        "given only nil serializers, then ErrNoSerializers",
			serializers: []Serializer{nil},
			wantErr:     ErrNoSerializers,
		},
		{
			name:            "given XML first, then XML is the default",
			serializers:     []Serializer{XMLSerializer{}, JSONSerializer{}},
			wantContentType: "application/xml",
			wantMediaTypes:  []string{"application/xml", "text/xml", "application/json", "text/json"},
		},
		{
			name:            "given a custom serializer, then it is used",
			serializers:     []Serializer{plainTextSerializer{}},
			wantContentType: "text/plain",
			wantMediaTypes:  []string{"text/plain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTransmissionSettings(tt.serializers...)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantContentType, got.DefaultContentType())
			assert.Equal(t, tt.wantMediaTypes, got.DeserializableMediaTypes())
		})
	}
}

func TestTransmissionSettings_FindSerializer(t *testing.T) {
	settings := DefaultTransmissionSettings()

	tests := []struct {
		name        string
		contentType string
		want        Serializer
		wantOK      bool
	}{
		{
			name:        "given exact JSON type, then JSON",
			contentType: "application/json",
			want:        JSONSerializer{},
			wantOK:      true,
		},
		{
			name:        "given charset parameter, then it is ignored",
			contentType: "application/json; charset=utf-8",
			want:        JSONSerializer{},
			wantOK:      true,
		},
		{
			name:        "given upper case type, then matched case-insensitively",
			contentType: "Text/XML",
			want:        XMLSerializer{},
			wantOK:      true,
		},
		{
			name:        "given malformed parameters, then the media type still matches",
			contentType: "application/xml;;",
			want:        XMLSerializer{},
			wantOK:      true,
		},
		{
			name:        "given unknown type, then not found",
			contentType: "application/pdf",
		},
		{
			name: "given empty type, then not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := settings.FindSerializer(tt.contentType)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
