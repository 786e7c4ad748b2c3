// Package httpapi is the HTTP surface of spec section 6: a single
// /api/v1/key resource, built the way the teacher assembles its own web
// stack — julienschmidt/httprouter for routing, carbocation/interpose as
// the middleware chain, urfave/negroni-compatible gzip and logging
// middleware, and justinas/nosurf for CSRF protection on the
// state-changing verbs. The resource itself is a thin adapter: all
// lifecycle semantics live in internal/directory.
package httpapi

import (
	"net/http"

	"github.com/carbocation/interpose"
	"github.com/julienschmidt/httprouter"
	"github.com/justinas/nosurf"
	negronilogrus "github.com/meatballhat/negroni-logrus"
	"github.com/phyber/negroni-gzip/gzip"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"keydirectory/internal/directory"
	"keydirectory/internal/mailer"
)

// Server adapts a Directory to spec section 6's HTTP contract.
type Server struct {
	dir   *directory.Directory
	proto string
}

// NewServer builds a Server. proto is the scheme ("http" or "https") used
// to build mailer.Origin for outgoing challenge links when a request
// doesn't carry a reliable X-Forwarded-Proto.
func NewServer(dir *directory.Directory, proto string) *Server {
	if proto == "" {
		proto = "https"
	}
	return &Server{dir: dir, proto: proto}
}

func (s *Server) origin(r *http.Request) mailer.Origin {
	proto := s.proto
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		proto = fwd
	}
	return mailer.Origin{Protocol: proto, Host: r.Host}
}

// NewHandler builds the full middleware-wrapped HTTP handler: gzip
// compression, structured request logging via the directory's logger, CSRF
// protection on POST/DELETE, then the httprouter mux carrying the
// /api/v1/key resource.
func NewHandler(dir *directory.Directory, proto string, log *logrus.Logger) http.Handler {
	s := NewServer(dir, proto)

	router := httprouter.New()
	router.POST("/api/v1/key", s.handlePut)
	router.GET("/api/v1/key", s.handleGet)
	router.DELETE("/api/v1/key", s.handleRequestRemove)

	protected := nosurf.New(router)
	protected.ExemptFunc(func(r *http.Request) bool {
		// the directory's own clients are API consumers, not browser forms;
		// only a same-origin browser submission needs the token checked
		return r.Header.Get("X-Requested-With") != "XMLHttpRequest"
	})

	n := negroni.New(negroni.NewRecovery())
	n.Use(gzip.Gzip(gzip.DefaultCompression))
	if log != nil {
		n.Use(negronilogrus.NewMiddlewareFromLogger(log, "keydirectory"))
	}
	n.UseHandler(protected)

	mw := interpose.New()
	mw.UseHandler(n)
	return mw
}
