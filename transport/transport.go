// Package transport implements spec 4.6: the single HTTP route this server
// exposes. It is the only place HTTP status codes are decided — every LoST
// protocol outcome, success or error, is delivered as a 200 (spec 4.5.4).
package transport

import (
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/dimfeld/httptreemux"

	"github.com/atlasdatatech/lost/engine"
	lerrors "github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/xmlcodec"
)

// Server wraps the resolution engine context behind an HTTP mux.
type Server struct {
	ectx   *engine.Context
	router *httptreemux.TreeMux
}

// New builds a Server with its single POST / route registered, plus a
// non-LoST GET /healthz liveness probe (spec D.2 supplement: fills the gap
// left by the original's Flask ping route without expanding protocol scope).
func New(ectx *engine.Context) *Server {
	s := &Server{ectx: ectx, router: httptreemux.New()}
	s.router.POST("/", s.handleLost)
	s.router.GET("/healthz", s.handleHealthz)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe binds addr and serves until the listener errors (spec 6
// "ip"/"port"); it always returns a non-nil error.
func (s *Server) ListenAndServe(addr string) error {
	log.Info("lost server listening on %s", addr)
	return http.ListenAndServe(addr, s)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleLost(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := time.Now()

	ct := contentType(r)
	if ct != lost.MIMEType {
		writeResponse(w, xmlcodec.BuildErrors(lerrors.BadRequest("unsupported content type %q", ct), s.ectx.ServerID))
		return
	}

	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, xmlcodec.BuildErrors(lerrors.BadRequest("failed to read request body: %v", err), s.ectx.ServerID))
		return
	}

	respBody := engine.Handle(r.Context(), s.ectx, body)
	writeResponse(w, respBody)

	log.Debug("handled request in %s", time.Since(start))
}

func writeResponse(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", lost.MIMEType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func contentType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
