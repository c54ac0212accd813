package httpclient

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/kroma-labs/restkit/resource"
)

// FileUpload is one file of a multipart upload.
//
// Build it with FileFromBytes, FileFromReader or FileFromPath:
//
//	body := httpclient.FileUploadBody(
//	    httpclient.FileFromPath("document", "/tmp/report.pdf"),
//	    httpclient.FileFromBytes("thumbnail", "thumb.png", png).WithContentType("image/png"),
//	)
type FileUpload struct {
	// Name is the form field name of the part.
	Name string

	// FileName is the filename reported in Content-Disposition.
	FileName string

	// ContentType of the part. Empty means application/octet-stream.
	ContentType string

	data   []byte
	reader io.Reader
	path   string
}

// FileFromBytes uploads in-memory data.
func FileFromBytes(name, fileName string, data []byte) FileUpload {
	return FileUpload{Name: name, FileName: fileName, data: data}
}

// FileFromReader uploads the content of r. The reader is consumed by the
// first send, so such uploads are never retried.
func FileFromReader(name, fileName string, r io.Reader) FileUpload {
	return FileUpload{Name: name, FileName: fileName, reader: r}
}

// FileFromPath uploads a file from disk. The file is opened when the body
// is first read and closed when it is exhausted.
func FileFromPath(name, path string) FileUpload {
	return FileUpload{Name: name, FileName: filepath.Base(path), path: path}
}

// WithContentType returns a copy of f with the part content type set.
func (f FileUpload) WithContentType(contentType string) FileUpload {
	f.ContentType = contentType
	return f
}

func (f FileUpload) content() io.Reader {
	switch {
	case f.path != "":
		return &lazyFileReader{path: f.path}
	case f.reader != nil:
		return f.reader
	default:
		return bytes.NewReader(f.data)
	}
}

// size returns the content length, or -1 when it is not known upfront.
func (f FileUpload) size() int64 {
	switch {
	case f.path != "":
		info, err := os.Stat(f.path)
		if err != nil {
			return -1
		}
		return info.Size()
	case f.reader != nil:
		return -1
	default:
		return int64(len(f.data))
	}
}

func (f FileUpload) header() textproto.MIMEHeader {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		`form-data; name="`+escapeQuotes(f.Name)+`"; filename="`+escapeQuotes(f.FileName)+`"`)
	h.Set("Content-Type", contentType)
	return h
}

type formField struct {
	name  string
	value string
}

type fileUploadBody struct {
	fields []formField
	files  []FileUpload
}

// FileUploadBody sends files as multipart/form-data, one part per file in
// the given order. Content is streamed from each source into the request;
// only the part headers are held in memory.
func FileUploadBody(files ...FileUpload) RequestBody {
	return &fileUploadBody{files: files}
}

func (b *fileUploadBody) ContentType() string              { return "multipart/form-data" }
func (b *fileUploadBody) ConsumesResourceParameters() bool { return false }
func (b *fileUploadBody) ResourceValues() *resource.Values { return nil }

func (b *fileUploadBody) Replayable() bool {
	for _, f := range b.files {
		if f.reader != nil && f.path == "" {
			return false
		}
	}
	return true
}

// Serialize lays the body out as alternating header and content readers.
// The multipart writer renders boundaries and part headers into a scratch
// buffer that is cut after every part, so file content never passes
// through it.
func (b *fileUploadBody) Serialize(*TransmissionSettings) (SerializedBody, error) {
	var scratch bytes.Buffer
	w := multipart.NewWriter(&scratch)

	readers := make([]io.Reader, 0, 2*len(b.files)+2)
	var files []io.Closer
	length := int64(0)

	cut := func() {
		chunk := bytes.Clone(scratch.Bytes())
		scratch.Reset()
		readers = append(readers, bytes.NewReader(chunk))
		if length >= 0 {
			length += int64(len(chunk))
		}
	}

	for _, field := range b.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return SerializedBody{}, err
		}
	}

	for _, f := range b.files {
		if _, err := w.CreatePart(f.header()); err != nil {
			return SerializedBody{}, err
		}
		cut()

		content := f.content()
		if lf, ok := content.(*lazyFileReader); ok {
			files = append(files, lf)
		}
		readers = append(readers, content)
		if size := f.size(); size < 0 || length < 0 {
			length = -1
		} else {
			length += size
		}
	}

	if err := w.Close(); err != nil {
		return SerializedBody{}, err
	}
	cut()

	return SerializedBody{
		ContentType:   w.FormDataContentType(),
		ContentLength: length,
		Reader:        &multipartReader{Reader: io.MultiReader(readers...), files: files},
	}, nil
}

// multipartReader closes the files opened for path uploads when the
// transport closes the body, even if it stopped reading early.
type multipartReader struct {
	io.Reader
	files []io.Closer
}

func (r *multipartReader) Close() error {
	var errs []error
	for _, f := range r.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// lazyFileReader opens its file on the first Read and closes it once the
// content is exhausted or a read fails.
type lazyFileReader struct {
	path string
	file *os.File
	done bool
}

func (l *lazyFileReader) Read(p []byte) (int, error) {
	if l.done {
		return 0, io.EOF
	}
	if l.file == nil {
		f, err := os.Open(l.path)
		if err != nil {
			l.done = true
			return 0, err
		}
		l.file = f
	}

	n, err := l.file.Read(p)
	if err != nil {
		_ = l.Close()
	}
	return n, err
}

// Close releases the file if it is still open.
func (l *lazyFileReader) Close() error {
	l.done = true
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return f.Close()
}

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
