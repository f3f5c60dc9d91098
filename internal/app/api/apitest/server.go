// Package apitest provides an in-memory fake of the platform API for tests
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"logview/internal/app/api"
)

// Server is a chi-routed fake backend serving instances, deployments and logs
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	instances   map[string]api.Instance
	deployments map[string]api.Deployment
	legacy      map[string]api.LegacyDeployment
	logs        http.HandlerFunc
	listStatus  int
	hits        map[string]int
}

// New starts a fake server; callers must Close it
func New() *Server {
	s := &Server{
		instances:   make(map[string]api.Instance),
		deployments: make(map[string]api.Deployment),
		legacy:      make(map[string]api.LegacyDeployment),
		hits:        make(map[string]int),
	}

	r := chi.NewRouter()
	r.Route("/v4/owners/{owner}/applications/{app}", func(r chi.Router) {
		r.Get("/instances", s.listInstances)
		r.Get("/instances/{id}", s.getInstance)
		r.Get("/deployments/{id}", s.getDeployment)
		r.Get("/logs", s.streamLogs)
	})
	r.Get("/v2/owners/{owner}/applications/{app}/deployments/{id}", s.getLegacyDeployment)

	s.Server = httptest.NewServer(r)

	return s
}

// PutInstance inserts or replaces an instance
func (s *Server) PutInstance(inst api.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = inst
}

// PutDeployment inserts or replaces a v4 deployment
func (s *Server) PutDeployment(d api.Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deployments[d.ID] = d
}

// PutLegacyDeployment inserts a deployment only known to the v2 API
func (s *Server) PutLegacyDeployment(d api.LegacyDeployment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.legacy[d.UUID] = d
}

// SetLogsHandler installs the handler serving the event stream endpoint
func (s *Server) SetLogsHandler(h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = h
}

// FailInstanceList makes instance listing answer with the given status; 0 restores it
func (s *Server) FailInstanceList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listStatus = status
}

// Hits returns how many times a route key was served, e.g. "instance:i1" or "deployment:d1"
func (s *Server) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hits[key]
}

func (s *Server) hit(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits[key]++
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	s.hit("instances")

	s.mu.Lock()
	status := s.listStatus
	all := make([]api.Instance, 0, len(s.instances))

	for _, inst := range s.instances {
		all = append(all, inst)
	}
	s.mu.Unlock()

	if status != 0 {
		writeError(w, status, "instances unavailable")
		return
	}

	q := r.URL.Query()
	deploymentID := q.Get("deploymentId")
	since, _ := time.Parse(time.RFC3339Nano, q.Get("since"))

	var until *time.Time
	if raw := q.Get("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			until = &t
		}
	}

	out := make([]api.Instance, 0, len(all))

	for _, inst := range all {
		if deploymentID != "" {
			if inst.DeploymentID == deploymentID {
				out = append(out, inst)
			}

			continue
		}

		if until != nil && inst.CreationDate.After(*until) {
			continue
		}

		if inst.DeletionDate != nil && inst.DeletionDate.Before(since) {
			continue
		}

		out = append(out, inst)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeJSON(w, out)
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.hit("instance:" + id)

	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}

	writeJSON(w, inst)
}

func (s *Server) getDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.hit("deployment:" + id)

	s.mu.Lock()
	d, ok := s.deployments[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}

	writeJSON(w, d)
}

func (s *Server) getLegacyDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.hit("legacy:" + id)

	s.mu.Lock()
	d, ok := s.legacy[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}

	writeJSON(w, d)
}

func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request) {
	s.hit("logs")

	s.mu.Lock()
	h := s.logs
	s.mu.Unlock()

	if h == nil {
		writeError(w, http.StatusNotFound, "no logs")
		return
	}

	h(w, r)
}

// WriteEvent writes one event-stream frame and flushes it
func WriteEvent(w http.ResponseWriter, id, name, data string) {
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}

	if name != "" {
		fmt.Fprintf(w, "event: %s\n", name)
	}

	fmt.Fprintf(w, "data: %s\n\n", data)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// StartEventStream writes the event stream response headers
func StartEventStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// LogPayload renders an APPLICATION_LOG body
func LogPayload(id string, date time.Time, message, instanceID string) string {
	data, _ := json.Marshal(map[string]string{
		"id":         id,
		"date":       date.UTC().Format(time.RFC3339Nano),
		"message":    message,
		"instanceId": instanceID,
	})

	return string(data)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
