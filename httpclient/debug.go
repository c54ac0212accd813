package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var _ Middleware = (*loggingMiddleware)(nil)

// debugLogger is the logger WithDebug uses when no logger was given.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// loggingMiddleware writes one debug event per request and one per
// outcome. With curl set, the request event also carries an equivalent
// cURL command.
type loggingMiddleware struct {
	logger   zerolog.Logger
	curl     bool
	settings *TransmissionSettings
}

func (m *loggingMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	target, _ := req.URL()

	ev := m.logger.Debug().
		Str("operation", req.Operation).
		Str("method", req.Method).
		Str("url", target)
	if m.curl {
		ev = ev.Str("curl", generateCurlCommand(req, m.settings))
	}
	ev.Msg("HTTP request")

	start := time.Now()
	resp, err := next(ctx, req)
	if err != nil {
		m.logger.Debug().
			Err(err).
			Str("operation", req.Operation).
			Dur("duration_ms", time.Since(start)).
			Msg("HTTP request failed")
		return nil, err
	}

	m.logger.Debug().
		Str("operation", req.Operation).
		Int("status", resp.StatusCode()).
		Str("status_text", resp.Status()).
		Dur("duration_ms", time.Since(start)).
		Int("content_length", len(resp.Body())).
		Msg("HTTP response")
	return resp, nil
}

// generateCurlCommand renders req as a cURL command line. Headers keep
// their order and names; basic credentials are masked. Multipart files are
// rendered as -F parts and bodies that can only be read once are left out.
//
//	curl -X POST 'https://api.example.com/products' \
//	  -H 'Content-Type: application/json' \
//	  -d '{"name":"Widget"}'
func generateCurlCommand(req *Request, settings *TransmissionSettings) string {
	parts := []string{"curl"}
	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	target, err := req.URL()
	if err != nil {
		target = req.Resource.String()
	}
	parts = append(parts, shellQuote(target))

	req.Header.Each(func(name, value string) {
		parts = append(parts, "-H", shellQuote(name+": "+value))
	})
	if req.UserAgent != "" && !req.Header.Has("User-Agent") {
		parts = append(parts, "-A", shellQuote(req.UserAgent))
	}
	if req.Credentials != nil {
		parts = append(parts, "-u", shellQuote(req.Credentials.Username+":***"))
	}

	if upload, ok := req.Body.(*fileUploadBody); ok {
		for _, f := range upload.fields {
			parts = append(parts, "-F", shellQuote(f.name+"="+f.value))
		}
		for _, f := range upload.files {
			parts = append(parts, "-F", shellQuote(f.Name+"=@"+f.FileName))
		}
		return strings.Join(parts, " ")
	}

	if !isReplayable(req.Body) {
		return strings.Join(parts, " ")
	}
	body, err := req.Body.Serialize(settings)
	if err != nil || body.Reader == nil {
		return strings.Join(parts, " ")
	}
	data, err := io.ReadAll(body.Reader)
	if err != nil || len(data) == 0 {
		return strings.Join(parts, " ")
	}
	if body.ContentType != "" && !req.Header.Has("Content-Type") {
		parts = append(parts, "-H", shellQuote("Content-Type: "+body.ContentType))
	}
	parts = append(parts, "-d", shellQuote(string(data)))
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(s, "'", `'\''`))
}
