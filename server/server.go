// Package server is the HTTP gateway: it owns the signed session cookie,
// gates access to session and tenant-database routes, and proxies authorized
// database requests to the backing store.
package server

import (
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/broker"
	"github.com/pouchdb/pouchbase/internal/config"
	"github.com/pouchdb/pouchbase/tenants"
)

// Server routes gateway traffic. The signed cookie it manages is the sole
// source of truth for "who is authenticated"; there is no server-side session
// table beyond the UserSession documents the broker keeps.
type Server struct {
	env         string
	mux         *http.ServeMux
	routes      []string
	config      config.Config
	broker      *broker.Service
	cookies     *CookieManager
	provisioner *tenants.Provisioner
	proxy       http.Handler
}

// New creates a gateway in front of brokerSvc. upstream is the base URL of
// the tenant-database backend that /db/* requests are delegated to.
func New(cfg config.Config, brokerSvc *broker.Service, provisioner *tenants.Provisioner, upstream *url.URL) (*Server, error) {
	if brokerSvc == nil {
		return nil, errors.New("[server.New] broker service is required")
	}
	if provisioner == nil {
		return nil, errors.New("[server.New] provisioner is required")
	}
	if upstream == nil {
		return nil, errors.New("[server.New] upstream database URL is required")
	}

	cookies, err := NewCookieManager(cfg.GetCookieSigningKey())
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] failed to create cookie manager")
	}

	s := &Server{
		env:         cfg.GetEnv(),
		mux:         http.NewServeMux(),
		config:      cfg,
		broker:      brokerSvc,
		cookies:     cookies,
		provisioner: provisioner,
		proxy:       newDatabaseProxy(upstream, cfg),
	}
	s.initRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}
