package httpclient

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/kroma-labs/restkit/resource"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCurlCommand(t *testing.T) {
	tests := []struct {
		name string
		req  func() *Request
		want string
	}{
		{
			name: "given GET request, then generates basic curl",
			req: func() *Request {
				return NewRequest(http.MethodGet, resource.New("https://api.example.com/users"), nil)
			},
			want: "curl 'https://api.example.com/users'",
		},
		{
			name: "given POST with object body, then content type and data are added",
			req: func() *Request {
				return NewRequest(http.MethodPost, resource.New("https://api.example.com/products"),
					ObjectBody(product{ID: 1, Name: "Widget"}))
			},
			want: `curl -X POST 'https://api.example.com/products' -H 'Content-Type: application/json' -d '{"id":1,"name":"Widget"}'`,
		},
		{
			name: "given headers, then they keep their order and names",
			req: func() *Request {
				req := NewRequest(http.MethodGet, resource.New("https://api.example.com/users"), nil)
				req.Header.Add("authorization", "Bearer token123")
				req.Header.Add("Accept", "application/json")
				return req
			},
			want: "curl 'https://api.example.com/users' -H 'authorization: Bearer token123' -H 'Accept: application/json'",
		},
		{
			name: "given single quotes in the body, then they are escaped",
			req: func() *Request {
				return NewRequest(http.MethodPut, resource.New("https://api.example.com/notes"),
					ByteArrayBody("text/plain", []byte("it's working")))
			},
			want: `curl -X PUT 'https://api.example.com/notes' -H 'Content-Type: text/plain' -d 'it'\''s working'`,
		},
		{
			name: "given credentials and a user agent, then the password is masked",
			req: func() *Request {
				req := NewRequest(http.MethodGet, resource.New("https://api.example.com/me"), nil)
				req.UserAgent = "restkit/1"
				req.Credentials = &Credentials{Username: "admin", Password: "hunter2"}
				return req
			},
			want: "curl 'https://api.example.com/me' -A 'restkit/1' -u 'admin:***'",
		},
		{
			name: "given a multipart upload, then fields and files become -F parts",
			req: func() *Request {
				return NewRequest(http.MethodPost, resource.New("https://api.example.com/documents"),
					&fileUploadBody{
						fields: []formField{{name: "title", value: "Q3"}},
						files:  []FileUpload{FileFromBytes("file", "q3.csv", []byte("a,b"))},
					})
			},
			want: "curl -X POST 'https://api.example.com/documents' -F 'title=Q3' -F 'file=@q3.csv'",
		},
		{
			name: "given an unmerged segment, then the template is shown",
			req: func() *Request {
				return NewRequest(http.MethodDelete, resource.New("https://api.example.com/products/:id"), nil)
			},
			want: "curl -X DELETE 'https://api.example.com/products/:id'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generateCurlCommand(tt.req(), DefaultTransmissionSettings()))
		})
	}
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		stub         func(m *MockTransport)
		curl         bool
		wantMessages []string
		wantStatus   float64
		wantCurl     bool
		wantErr      bool
	}{
		{
			name:         "given a response, then request and response events",
			stub:         func(m *MockTransport) { m.StubResponse(http.StatusCreated, "done") },
			wantMessages: []string{"HTTP request", "HTTP response"},
			wantStatus:   http.StatusCreated,
		},
		{
			name:         "given curl enabled, then the request event carries it",
			stub:         func(m *MockTransport) { m.StubResponse(http.StatusOK, "") },
			curl:         true,
			wantMessages: []string{"HTTP request", "HTTP response"},
			wantStatus:   http.StatusOK,
			wantCurl:     true,
		},
		{
			name:         "given a transport error, then a failure event",
			stub:         func(m *MockTransport) { m.StubError(errors.New("connection reset by peer")) },
			wantMessages: []string{"HTTP request", "HTTP request failed"},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mock := NewMockTransport()
			tt.stub(mock)
			c := newMockClient(t, mock,
				WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)),
				WithDebug(true),
				WithGenerateCurl(tt.curl),
			)

			_, err := c.Request("CreateNote").BodyBytes("text/plain", []byte("hi")).Post(context.Background(), "notes")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			lines := decodeLogLines(t, &buf)
			require.Len(t, lines, len(tt.wantMessages))
			for i, msg := range tt.wantMessages {
				assert.Equal(t, msg, lines[i]["message"])
				assert.Equal(t, "CreateNote", lines[i]["operation"])
			}
			assert.Equal(t, "http://api.test/notes", lines[0]["url"])

			_, hasCurl := lines[0]["curl"]
			assert.Equal(t, tt.wantCurl, hasCurl)
			if tt.wantStatus != 0 {
				assert.InDelta(t, tt.wantStatus, lines[1]["status"], 0)
			} else {
				assert.Contains(t, lines[1]["error"], "connection reset by peer")
			}
		})
	}
}

func TestLoggingMiddleware_DisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	c := newMockClient(t, NewMockTransport().StubResponse(http.StatusOK, ""),
		WithLogger(zerolog.New(&buf).Level(zerolog.InfoLevel)),
		WithDebug(true),
	)

	_, err := c.Request("List").Get(context.Background(), "notes")
	require.NoError(t, err)

	assert.Empty(t, buf.String())
}
