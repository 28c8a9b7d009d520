// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpserver exposes a small operational surface for a running
// pipeline — health, readiness, and the ledger's recent-runs list —
// over gorilla/mux, wired with a compression/recovery/logging
// middleware stack.
package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/lukemarshall2222/netquery/internal/ledger"
)

// Server exposes operational HTTP endpoints for a running pipeline.
type Server struct {
	http  *http.Server
	ready atomic.Bool
}

// New builds a Server bound to addr. If l is non-nil, /runs lists its
// recent run metadata.
func New(addr string, l *ledger.Ledger) *Server {
	s := &Server{}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	})
	if l != nil {
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := l.Recent(50)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(runs)
		})
	}

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	logged := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		if strings.HasPrefix(params.Request.RequestURI, "/runs") {
			cclog.Infof("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
		} else {
			cclog.Debugf("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
		}
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's root http.Handler, useful for testing
// routes without binding a real listener.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// SetReady flips the /readyz endpoint; call it once input sources are
// connected and a run is actually processing records.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server at once, closing its listener and any
// active connections without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.http.Close()
}
