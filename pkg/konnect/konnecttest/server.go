// Package konnecttest provides an in-process fake of the Konnect v2 API
// endpoints used to bootstrap a data plane.
package konnecttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/rs/zerolog"
)

// Options seeds the fake. Sequences are replayed in order and the last
// element repeats once they are exhausted.
type Options struct {
	ControlPlanes []konnect.ControlPlane
	// ControlPlaneTotal overrides meta.page.total of the listing when set.
	ControlPlaneTotal int
	// NodeLists are the successive replies of the node listing, as node IDs.
	NodeLists [][]string
	// NodeHashes are the successive config_hash values of node details.
	NodeHashes  []string
	NodeVersion string
	// ExpectedHashBody is the raw JSON served by expected-config-hash.
	ExpectedHashBody string
	// CertificateStatus is the status of certificate pinning, 201 when zero.
	CertificateStatus int
	// OmitCertificateID drops item.id from the pinning reply.
	OmitCertificateID bool
	// NodeDeleteStatus is the status of node deletion, 204 when zero.
	NodeDeleteStatus int
	Org              konnect.OrgUserInfo
}

// Request is a request observed by the fake.
type Request struct {
	Method string
	Path   string
}

// Server is a fake Konnect API.
type Server struct {
	*httptest.Server

	opts Options

	mu           sync.Mutex
	requests     []Request
	certificates []string
	listCalls    int
	getCalls     int
}

// NewServer starts a fake Konnect API that is closed with the test.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	if opts.CertificateStatus == 0 {
		opts.CertificateStatus = http.StatusCreated
	}
	if opts.NodeDeleteStatus == 0 {
		opts.NodeDeleteStatus = http.StatusNoContent
	}
	s := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/control-planes", s.listControlPlanes)
	mux.HandleFunc("POST /v2/control-planes/{id}/dp-client-certificates", s.createCertificate)
	mux.HandleFunc("DELETE /v2/control-planes/{id}/dp-client-certificates/{certID}", s.noContent)
	mux.HandleFunc("GET /v2/control-planes/{id}/nodes", s.listNodes)
	mux.HandleFunc("GET /v2/control-planes/{id}/nodes/{nodeID}", s.getNode)
	mux.HandleFunc("DELETE /v2/control-planes/{id}/nodes/{nodeID}", s.deleteNode)
	mux.HandleFunc("GET /v2/control-planes/{id}/expected-config-hash", s.expectedHash)
	mux.HandleFunc("GET /v2/organizations/me", s.org)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// Client returns a konnect.Client pointed at the fake.
func (s *Server) Client(t testing.TB) *konnect.Client {
	t.Helper()
	c, err := konnect.NewClient(konnect.ClientOpts{
		Address:    s.URL,
		Token:      "kpat_test",
		HTTPClient: &http.Client{},
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("creating konnect client: %v", err)
	}
	return c
}

// Requests returns every request served so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Certificates returns the certificates pinned so far, as received.
func (s *Server) Certificates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.certificates...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listControlPlanes(w http.ResponseWriter, _ *http.Request) {
	data := s.opts.ControlPlanes
	if data == nil {
		data = []konnect.ControlPlane{}
	}
	total := len(data)
	if s.opts.ControlPlaneTotal != 0 {
		total = s.opts.ControlPlaneTotal
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"meta": map[string]interface{}{
			"page": konnect.PageMeta{Number: 1, Size: 100, Total: total},
		},
	})
}

func (s *Server) createCertificate(w http.ResponseWriter, r *http.Request) {
	var body konnect.DPClientCertificate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	s.certificates = append(s.certificates, body.Cert)
	s.mu.Unlock()

	if s.opts.CertificateStatus >= http.StatusBadRequest {
		writeJSON(w, s.opts.CertificateStatus, map[string]string{"message": "certificate rejected"})
		return
	}
	item := map[string]string{"id": "cert-" + r.PathValue("id"), "cert": body.Cert}
	if s.opts.OmitCertificateID {
		delete(item, "id")
	}
	writeJSON(w, s.opts.CertificateStatus, map[string]interface{}{"item": item})
}

func (s *Server) listNodes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ids := pick(s.opts.NodeLists, s.listCalls)
	s.listCalls++
	s.mu.Unlock()

	items := make([]konnect.Node, 0, len(ids))
	for _, id := range ids {
		items = append(items, konnect.Node{ID: id, Version: s.opts.NodeVersion})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hash := pick(s.opts.NodeHashes, s.getCalls)
	s.getCalls++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item": konnect.Node{
			ID:         r.PathValue("nodeID"),
			Version:    s.opts.NodeVersion,
			ConfigHash: hash,
		},
	})
}

func (s *Server) expectedHash(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.opts.ExpectedHashBody))
}

func (s *Server) org(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Org)
}

func (s *Server) deleteNode(w http.ResponseWriter, _ *http.Request) {
	if s.opts.NodeDeleteStatus >= http.StatusBadRequest {
		writeJSON(w, s.opts.NodeDeleteStatus, map[string]string{"message": "node not deleted"})
		return
	}
	w.WriteHeader(s.opts.NodeDeleteStatus)
}

func (s *Server) noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func pick[T any](seq []T, i int) T {
	var zero T
	if len(seq) == 0 {
		return zero
	}
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
