package core

import (
	"crypto/subtle"
	"net/http"

	"lexquota/internal/types"
)

// Header names for service-to-service authentication. Every internal caller
// presents the shared token plus its own service name for attribution.
const (
	HeaderServiceToken = "X-Service-Token"
	HeaderServiceName  = "X-Service-Name"
)

// knownCallers maps the X-Service-Name header to a typed caller identity.
// Unknown names are accepted (the token is what authenticates) but recorded
// as CallerUnknown so attribution gaps show up in logs and metrics.
var knownCallers = map[string]types.CallerService{
	string(types.CallerGateway):  types.CallerGateway,
	string(types.CallerAI):       types.CallerAI,
	string(types.CallerSearch):   types.CallerSearch,
	string(types.CallerDocument): types.CallerDocument,
}

// ServiceAuthMiddleware verifies the shared service token on every request
// and injects the caller identity into the context. The health endpoint is
// exempt so load balancers can probe without credentials.
//
// The token comparison is constant-time. This service sits on an internal
// network; the token guards against accidental cross-environment calls, not
// against untrusted clients, which never reach it.
func (s *Server) ServiceAuthMiddleware(next http.Handler) http.Handler {
	expected := []byte(s.Config.Security.ServiceToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(HeaderServiceToken)
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
				"service token is required", nil))
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
				"service token is invalid", nil))
			return
		}

		caller, ok := knownCallers[r.Header.Get(HeaderServiceName)]
		if !ok {
			caller = types.CallerUnknown
		}

		next.ServeHTTP(w, r.WithContext(types.WithCaller(r.Context(), caller)))
	})
}
