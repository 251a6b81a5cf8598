package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/attrs"
	"github.com/pouchdb/pouchbase/broker"
	"github.com/rs/zerolog/log"
)

// sendJSON writes a JSON response body with the given status.
func sendJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// sendError writes the generic opaque error body. Details stay in the logs.
func sendError(w http.ResponseWriter, status int) {
	sendJSON(w, status, map[string]any{"error": true})
}

// IndexHandler serves a minimal service description on GET /.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"name":    s.config.GetAppName(),
			"version": 1,
		})
	}
}

// PreflightHandler terminates CORS preflight requests; the CORS middleware
// has already attached the response headers.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// LoginHandler implements POST /login/: issue a single-use token for the
// identity in the request body and deliver it out-of-band. The response never
// reveals whether delivery happened.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var details attrs.Attributes
		if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
			sendError(w, http.StatusBadRequest)
			return
		}

		err := s.broker.RequestLogin(r.Context(), details, r.Header.Get("Origin"))
		if errors.Is(err, broker.ErrMissingIdentity) {
			sendError(w, http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Login request failed")
			sendError(w, http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// ValidateHandler implements GET|POST /validate/: exchange a raw token for an
// authenticated session cookie. GET redirects back to the requesting origin
// so mailed links land in the app; POST answers JSON.
//
// Failures answer 200 with {error:true}: clients of this API switch on the
// body, not the status, and the generic body avoids identity enumeration.
func (s *Server) ValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		uid := query.Get("uid")
		token := query.Get("token")
		host := query.Get("host")

		err := s.broker.ValidateToken(r.Context(), uid, host, token)
		if err != nil {
			if !errors.Is(err, broker.ErrVerificationFailed) {
				log.Error().Err(err).Msg("Token validation failed abnormally")
			}
			sendError(w, http.StatusOK)
			return
		}

		if err := s.cookies.Issue(w, uid); err != nil {
			log.Error().Err(err).Msg("Failed to issue session cookie")
			sendError(w, http.StatusInternalServerError)
			return
		}

		if r.Method == http.MethodGet && host != "" {
			http.Redirect(w, r, host, http.StatusFound)
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{"ok": true, "origin": host})
	}
}

// SessionReadHandler implements GET /session/ for authenticated requests.
func (s *Server) SessionReadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r)
		origin := r.Header.Get("Origin")

		public, err := s.broker.ReadSession(r.Context(), identity, origin)
		if err != nil {
			sendError(w, http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, s.sessionBody(identity, origin, public))
	}
}

// SessionWriteHandler implements POST /session/: merge the request body into
// the session's attributes and return the merged document.
func (s *Server) SessionWriteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r)
		origin := r.Header.Get("Origin")

		var incoming attrs.Attributes
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			sendError(w, http.StatusBadRequest)
			return
		}

		merged, err := s.broker.WriteSession(r.Context(), identity, origin, incoming)
		if err != nil {
			sendError(w, http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, s.sessionBody(identity, origin, merged))
	}
}

// LogoutHandler implements POST /logout/: clear the cookie and nothing else.
// The session document survives so a later login finds its attributes again.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.cookies.Clear(w)
		sendJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// sessionBody flattens the public attributes into the response alongside the
// identity and the tenant database URL.
func (s *Server) sessionBody(identity, origin string, public attrs.Attributes) map[string]any {
	body := make(map[string]any, len(public)+3)
	for key, value := range public {
		body[key] = value
	}
	body["ok"] = true
	body["user"] = identity
	body["db"] = s.broker.TenantURL(identity, origin)
	return body
}
