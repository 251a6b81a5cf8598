package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/pouchdb/pouchbase/internal/config"
	"github.com/rs/zerolog/log"
)

// newDatabaseProxy builds the reverse proxy that delegates authorized /db/*
// requests to the tenant-database backend. The path has already been
// rewritten to the tenant database by the time a request reaches it.
func newDatabaseProxy(upstream *url.URL, cfg config.StorageConfig) http.Handler {
	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = upstream.Scheme
			req.URL.Host = upstream.Host
			req.Host = upstream.Host
			// The gateway has already authorized the request; talk to the
			// backend with its own credentials.
			if user := cfg.GetDatabaseAdminUser(); user != "" {
				req.SetBasicAuth(user, cfg.GetDatabaseAdminPassword())
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Tenant database proxy failed")
			sendError(w, http.StatusBadGateway)
		},
	}
	return proxy
}

// DatabaseHandler gates and rewrites tenant database requests. The tenant is
// derived from the cookie identity plus the request's Origin header, never
// from the request path, so an identity authenticated under origin A can
// never address the database named for the same identity under origin B.
func (s *Server) DatabaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r)
		origin := r.Header.Get("Origin")

		dbName, err := s.provisioner.Ensure(r.Context(), identity, origin)
		if err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("Tenant database provisioning failed")
			sendError(w, http.StatusInternalServerError)
			return
		}

		rest := strings.TrimPrefix(r.URL.EscapedPath(), RouteDatabase)

		// Delegate verbatim: method, body and headers pass through untouched,
		// only the path prefix is replaced by the tenant database name. The
		// database name is percent-encoded, so it must go out through RawPath
		// or the proxy would escape it a second time.
		encodedPath := "/" + dbName + "/" + rest
		decodedPath, err := url.PathUnescape(encodedPath)
		if err != nil {
			decodedPath = encodedPath
		}
		outbound := r.Clone(r.Context())
		outbound.URL.Path = decodedPath
		outbound.URL.RawPath = encodedPath

		s.proxy.ServeHTTP(w, outbound)
	}
}
