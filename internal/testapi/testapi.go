// Package testapi is a small in-memory REST API used by the integration
// tests: a product catalog, companies with invoices, invoice downloads and
// attachment uploads, plus endpoints that redirect, fail on demand or
// require a bearer token.
package testapi

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
)

// Token is the bearer token accepted by /me.
const Token = "test-token"

type Product struct {
	XMLName xml.Name `json:"-"              xml:"product"`
	ID      int      `json:"id"             xml:"id"`
	Name    string   `json:"name"           xml:"name"`
	Price   float64  `json:"price"          xml:"price"`
	Tags    []string `json:"tags,omitempty" xml:"tags>tag,omitempty"`
}

type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Invoice struct {
	ID        int       `json:"id"`
	CompanyID string    `json:"company_id"`
	Number    string    `json:"number"`
	Amount    float64   `json:"amount"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Part describes one part of a received multipart upload.
type Part struct {
	Field       string `json:"field"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// Error is the body of every 4xx and 5xx answer.
type Error struct {
	Message string `json:"message"`
}

// Server holds the data behind the API. It is safe for concurrent use.
type Server struct {
	mu        sync.RWMutex
	products  map[int]Product
	nextID    int
	companies map[string]Company
	invoices  []Invoice

	failures atomic.Int32
	hits     atomic.Int32
}

// New returns a server seeded with three products, two companies and
// their invoices.
func New() *Server {
	issued := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	s := &Server{
		products: map[int]Product{
			1: {ID: 1, Name: "Widget", Price: 9.5, Tags: []string{"tools", "sale"}},
			2: {ID: 2, Name: "Gear", Price: 12, Tags: []string{"parts"}},
			3: {ID: 3, Name: "Sprocket", Price: 3.25, Tags: []string{"parts", "sale"}},
		},
		nextID: 4,
		companies: map[string]Company{
			"acme":   {ID: "acme", Name: "Acme Corp"},
			"globex": {ID: "globex", Name: "Globex"},
		},
		invoices: []Invoice{
			{ID: 1, CompanyID: "acme", Number: "INV-001", Amount: 120, IssuedAt: issued},
			{ID: 2, CompanyID: "acme", Number: "INV-002", Amount: 80, IssuedAt: issued.AddDate(0, 1, 0)},
			{ID: 3, CompanyID: "globex", Number: "INV-003", Amount: 42, IssuedAt: issued},
		},
	}
	return s
}

// Start serves the API on a loopback address until the test ends.
func Start(tb testing.TB) (*Server, *httptest.Server) {
	tb.Helper()
	s := New()
	srv := httptest.NewServer(s.Handler())
	tb.Cleanup(srv.Close)
	return s, srv
}

// FailNext makes the next n calls to /flaky answer 503.
func (s *Server) FailNext(n int) {
	s.failures.Store(int32(n))
}

// Hits returns the number of requests served since the last ResetHits.
func (s *Server) Hits() int {
	return int(s.hits.Load())
}

func (s *Server) ResetHits() {
	s.hits.Store(0)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, s.count)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.listProducts)
		r.Post("/", s.createProduct)
		r.Get("/{id}", s.getProduct)
		r.Put("/{id}", s.updateProduct)
		r.Delete("/{id}", s.deleteProduct)
	})
	r.Get("/companies/{company}", s.getCompany)
	r.Get("/companies/{company}/invoices", s.listInvoices)
	r.Get("/invoices/{id}/pdf", s.downloadInvoice)
	r.Post("/invoices/{id}/attachments", s.uploadAttachments)

	r.Get("/me", s.me)
	r.Get("/flaky", s.flaky)
	r.Get("/echo", s.echo)
	r.Get("/redirect/{n}", s.redirect)
	r.Get("/slow", s.slow)
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, Error{Message: fmt.Sprintf(format, args...)})
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}

// queryList accepts both tag=a,b and tag=a&tag=b.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, item := range strings.Split(v, ",") {
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("name"))
	tags := queryList(r, "tag")

	s.mu.RLock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		if !hasAll(p.Tags, tags) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Product) int { return a.ID - b.ID })
	writeJSON(w, http.StatusOK, out)
}

func hasAll(have, want []string) bool {
	for _, t := range want {
		if !slices.Contains(have, t) {
			return false
		}
	}
	return true
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id %q", chi.URLParam(r, "id"))
		return
	}
	s.mu.RLock()
	p, found := s.products[id]
	s.mu.RUnlock()
	if !found {
		writeError(w, http.StatusNotFound, "product %d not found", id)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "xml") {
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(p)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func decodeProduct(r *http.Request) (Product, error) {
	var p Product
	var err error
	if strings.Contains(r.Header.Get("Content-Type"), "xml") {
		err = xml.NewDecoder(r.Body).Decode(&p)
	} else {
		err = json.NewDecoder(r.Body).Decode(&p)
	}
	return p, err
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	p, err := decodeProduct(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode product: %v", err)
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	s.mu.Lock()
	p.ID = s.nextID
	s.nextID++
	s.products[p.ID] = p
	s.mu.Unlock()

	w.Header().Set("Location", fmt.Sprintf("/products/%d", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id %q", chi.URLParam(r, "id"))
		return
	}
	p, err := decodeProduct(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode product: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.products[id]; !found {
		writeError(w, http.StatusNotFound, "product %d not found", id)
		return
	}
	p.ID = id
	s.products[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id %q", chi.URLParam(r, "id"))
		return
	}
	s.mu.Lock()
	_, found := s.products[id]
	delete(s.products, id)
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "product %d not found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	c, found := s.companies[chi.URLParam(r, "company")]
	s.mu.RUnlock()
	if !found {
		writeError(w, http.StatusNotFound, "company %q not found", chi.URLParam(r, "company"))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// listInvoices filters by ?since=2006-01-02T15:04:05 when given.
func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	company := chi.URLParam(r, "company")
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse("2006-01-02T15:04:05", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since %q", raw)
			return
		}
		since = t
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, found := s.companies[company]; !found {
		writeError(w, http.StatusNotFound, "company %q not found", company)
		return
	}
	out := []Invoice{}
	for _, inv := range s.invoices {
		if inv.CompanyID == company && !inv.IssuedAt.Before(since) {
			out = append(out, inv)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// InvoicePDF is the fake document served for an invoice.
func InvoicePDF(number string) []byte {
	return []byte("%PDF-1.7\n% " + number + "\n%%EOF\n")
}

func (s *Server) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok || id < 1 || id > len(s.invoices) {
		writeError(w, http.StatusNotFound, "invoice %q not found", chi.URLParam(r, "id"))
		return
	}
	inv := s.invoices[id-1]

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; name="invoice"; filename="%s.pdf"`, inv.Number))
	_, _ = w.Write(InvoicePDF(inv.Number))
}

func (s *Server) uploadAttachments(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "not multipart: %v", err)
		return
	}

	parts := []Part{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "read part: %v", err)
			return
		}
		content, err := io.ReadAll(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read part: %v", err)
			return
		}
		part := Part{Field: p.FormName(), FileName: p.FileName(), Content: string(content)}
		if part.FileName != "" {
			part.ContentType = p.Header.Get("Content-Type")
		}
		parts = append(parts, part)
	}
	writeJSON(w, http.StatusCreated, parts)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		w.Header().Set("WWW-Authenticate", `Bearer realm="testapi"`)
		writeError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subject": "svc-test"})
}

func (s *Server) flaky(w http.ResponseWriter, _ *http.Request) {
	if s.failures.Add(-1) >= 0 {
		w.Header().Set("Retry-After", "0")
		writeError(w, http.StatusServiceUnavailable, "try again")
		return
	}
	s.failures.Store(0)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// echo answers with the method, the raw query and the request headers.
func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"method": r.Method,
		"query":  r.URL.RawQuery,
		"header": r.Header,
	})
}

// redirect sends /redirect/n to /redirect/n-1 and /redirect/0 to
// /products/1.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	target := "/products/1"
	if n > 0 {
		target = fmt.Sprintf("/redirect/%d", n-1)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// slow waits ?delay= (a Go duration) or until the client goes away.
func (s *Server) slow(w http.ResponseWriter, r *http.Request) {
	d, err := time.ParseDuration(r.URL.Query().Get("delay"))
	if err != nil {
		d = time.Second
	}
	select {
	case <-time.After(d):
		writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
	case <-r.Context().Done():
	}
}
