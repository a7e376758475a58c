// Package brokertest provides a fake marketplace server speaking the broker
// wire protocol, for tests.
package brokertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

// Route names used for failure injection and request counting
const (
	RouteListings   = "listings"
	RouteListing    = "listing"
	RouteBundle     = "bundle"
	RoutePublish    = "publish"
	RouteSubmission = "submission"
	RouteSchema     = "schema"
)

// Envelope formats served by GET /listings
const (
	FormatSkillMeat = "skillmeat"
	FormatClaudeHub = "claudehub"
)

// PublishRecord is one multipart publish request as received
type PublishRecord struct {
	Fields     map[string]string
	BundleName string
	Bundle     []byte
}

// Server is an in-process fake marketplace
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	order       []string
	listings    map[string]json.RawMessage
	bundles     map[string][]byte
	etag        string
	format      string
	schema      map[string]string
	latency     time.Duration
	failures    map[string]int
	counts      map[string]int
	lastQuery   url.Values
	lastAuth    string
	publishes   []PublishRecord
	submissions map[string]marketplace.PublishResultFields
	verdict     marketplace.PublishStatus
	nextID      int
}

// NewServer starts a fake marketplace. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		listings:    make(map[string]json.RawMessage),
		bundles:     make(map[string][]byte),
		format:      FormatSkillMeat,
		failures:    make(map[string]int),
		counts:      make(map[string]int),
		submissions: make(map[string]marketplace.PublishResultFields),
		verdict:     marketplace.PublishPending,
	}

	r := mux.NewRouter()
	s.RegisterRoutes(r)
	r.Use(s.middleware)
	s.Server = httptest.NewServer(r)
	return s
}

// RegisterRoutes registers the wire protocol routes
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/listings", s.handleListings).Methods("GET").Name(RouteListings)
	r.HandleFunc("/listings/{id}", s.handleListing).Methods("GET").Name(RouteListing)
	r.HandleFunc("/bundles/{id}", s.handleBundle).Methods("GET").Name(RouteBundle)
	r.HandleFunc("/publish", s.handlePublish).Methods("POST").Name(RoutePublish)
	r.HandleFunc("/submissions/{id}", s.handleSubmission).Methods("GET").Name(RouteSubmission)
	r.HandleFunc("/schema", s.handleSchema).Methods("GET").Name(RouteSchema)
}

// AddListing serves a listing in the generic wire shape
func (s *Server) AddListing(f marketplace.ListingFields) {
	raw, _ := json.Marshal(f)
	s.AddRawListing(f.ListingID, raw)
}

// AddRawListing serves an arbitrary JSON item under id
func (s *Server) AddRawListing(id string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		s.order = append(s.order, id)
	}
	s.listings[id] = raw
}

// AddBundle serves data at BundleURL(id)
func (s *Server) AddBundle(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[id] = data
}

// BundleURL returns the absolute download URL for a bundle id
func (s *Server) BundleURL(id string) string {
	return s.URL + "/bundles/" + url.PathEscape(id)
}

// SetETag makes GET /listings answer with an ETag and honor If-None-Match
func (s *Server) SetETag(etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etag = etag
}

// SetFormat selects the listings envelope
func (s *Server) SetFormat(format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
}

// SetSchema serves a field map at /schema
func (s *Server) SetSchema(fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = fields
}

// SetLatency delays every response
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Fail makes a route answer with status until cleared with status 0
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// SetVerdict sets the status returned for new publish requests
func (s *Server) SetVerdict(status marketplace.PublishStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict = status
}

// SetSubmissionStatus changes a stored submission as a reviewer would
func (s *Server) SetSubmissionStatus(id string, status marketplace.PublishStatus, message string, errs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		sub = marketplace.PublishResultFields{SubmissionID: id, CreatedAt: time.Now().UTC()}
	}
	sub.Status = status
	sub.Message = message
	sub.Errors = errs
	sub.UpdatedAt = time.Now().UTC()
	if status == marketplace.PublishApproved {
		sub.ListingURL = s.URL + "/listings/" + url.PathEscape(id)
	}
	s.submissions[id] = sub
}

// Requests returns how many requests reached a route
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[route]
}

// LastQuery returns the query of the most recent listings request
func (s *Server) LastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// LastAuthorization returns the Authorization header of the latest request
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// Publishes returns every publish request received
func (s *Server) Publishes() []PublishRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PublishRecord(nil), s.publishes...)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := ""
		if cur := mux.CurrentRoute(r); cur != nil {
			route = cur.GetName()
		}

		s.mu.Lock()
		s.counts[route]++
		s.lastAuth = r.Header.Get("Authorization")
		latency := s.latency
		status := s.failures[route]
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}

		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf("injected failure on %s", route)})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.Lock()
	s.lastQuery = query
	etag := s.etag
	format := s.format
	items := make([]json.RawMessage, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.listings[id])
	}
	s.mu.Unlock()

	if etag != "" {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	totalPages := (len(items) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	from := min((page-1)*pageSize, len(items))
	to := min(from+pageSize, len(items))

	var body map[string]any
	if format == FormatClaudeHub {
		body = map[string]any{"items": items[from:to], "pages": totalPages}
	} else {
		body = map[string]any{"listings": items[from:to], "total_pages": totalPages}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	raw, ok := s.listings[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "listing not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	data, ok := s.bundles[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "bundle not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Write(data)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := PublishRecord{Fields: make(map[string]string)}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			record.Fields[k] = v[0]
		}
	}

	file, header, err := r.FormFile("bundle")
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "bundle file is required"})
		return
	}
	defer file.Close()
	record.BundleName = header.Filename
	record.Bundle, _ = io.ReadAll(file)

	now := time.Now().UTC()
	s.mu.Lock()
	s.nextID++
	result := marketplace.PublishResultFields{
		SubmissionID: fmt.Sprintf("sub-%d", s.nextID),
		Status:       s.verdict,
		Message:      "Submission received",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.publishes = append(s.publishes, record)
	s.submissions[result.SubmissionID] = result
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	sub, ok := s.submissions[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	schema := s.schema
	s.mu.Unlock()

	if schema == nil {
		http.Error(w, "no schema", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schema)
}
