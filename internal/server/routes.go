package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Startups
	mux.HandleFunc("/api/startups", s.handleStartupsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/startups/", s.handleStartupRoutes) // /{id} and subpaths

	// API routes - Jobs
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // GET /{id}

	// API routes - Objects (signed read URLs)
	mux.HandleFunc("/api/objects/", s.handleObjectRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleStartupsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.StartupHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.StartupHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStartupRoutes dispatches /api/startups/{id} and its subpaths.
func (s *Server) handleStartupRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/startups/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.StartupHandler.GetHandler(w, r, id)
	case "sources":
		s.app.SourceHandler.CreateHandler(w, r, id)
	case "analyze":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.StartupHandler.AnalyzeHandler(w, r, id)
	case "status":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.StartupHandler.StatusHandler(w, r, id)
	case "analysis":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.StartupHandler.AnalysisHandler(w, r, id)
	case "report":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.StartupHandler.ReportHandler(w, r, id)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.JobHandler.GetHandler(w, r, id)
}

func (s *Server) handleObjectRoutes(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/objects/")
	if key == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.ObjectHandler.GetHandler(w, r, key)
}
