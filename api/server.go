// Package api exposes the HTTP surface of the report backend: the report
// CRUD endpoints, image upload and the websocket endpoint of the real-time
// chat.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/upload"
	"github.com/bpsreport/report-server/ws"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type Server struct {
	cfg       *config.Config
	persister persistence.Persister
	hub       *ws.Hub
	uploads   *upload.Store

	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, persister persistence.Persister, hub *ws.Hub, uploads *upload.Store) *Server {
	return &Server{
		cfg:       cfg,
		persister: persister,
		hub:       hub,
		uploads:   uploads,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.corsMiddleware)
	router.HandleFunc("/api/reports", s.createReport).Methods(http.MethodPost)
	router.HandleFunc("/api/reports", s.listReports).Methods(http.MethodGet)
	router.HandleFunc("/api/reports/{id}", s.getReport).Methods(http.MethodGet)
	router.HandleFunc("/api/reports/{id}/respond", s.respondReport).Methods(http.MethodPost)
	router.HandleFunc("/api/reports/{id}/close", s.closeReport).Methods(http.MethodPut)
	router.HandleFunc("/api/reports/{id}", s.deleteReport).Methods(http.MethodDelete)
	router.HandleFunc("/api/upload", s.uploadImage).Methods(http.MethodPost)
	router.PathPrefix(upload.WebPrefix).Handler(
		http.StripPrefix(upload.WebPrefix, http.FileServer(http.Dir(s.uploads.Dir()))))
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.websocketHandler).Methods(http.MethodGet)
	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handle incoming websockets. The connection handler stays on the request
// goroutine until the connection dies, mirroring the read/write loop split of
// the client.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	c := ws.NewClient(s.hub, conn, doneChan)

	// wait until the hub has actually registered the client, only then are
	// broadcasts guaranteed to reach it
	c.Add(1)
	s.hub.Register <- c
	c.Wait()
	defer func() {
		s.hub.Unregister <- c
	}()

	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	<-doneChan
	globals.AppLogger.Debug("doneChan closed, exiting ws handler")
}

// corsMiddleware answers preflight requests and pins the allowed origin to
// the configured frontend. An empty cors_origin allows any origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.cfg.CORSOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		globals.AppLogger.Error("could not write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
