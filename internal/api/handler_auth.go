package api

import (
	"net/http"

	"github.com/Resinat/Dashgate/internal/downstream"
)

// Auth handlers check only the body shape: unknown fields and
// malformed JSON are rejected here. Credential rules and user state
// belong to the auth service.

// HandleRegister returns a handler for POST /api/auth/register.
func HandleRegister(gw *downstream.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req downstream.RegisterRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		forward(w, func() (*downstream.Response, error) {
			return gw.Register(r.Context(), req, r.Header)
		})
	}
}

// HandleLogin returns a handler for POST /api/auth/login.
func HandleLogin(gw *downstream.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req downstream.LoginRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		forward(w, func() (*downstream.Response, error) {
			return gw.Login(r.Context(), req, r.Header)
		})
	}
}

// HandleLogout returns a handler for POST /api/auth/logout.
func HandleLogout(gw *downstream.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forward(w, func() (*downstream.Response, error) {
			return gw.Logout(r.Context(), r.Header)
		})
	}
}

// HandleVerify returns a handler for GET /api/auth/verify.
func HandleVerify(gw *downstream.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forward(w, func() (*downstream.Response, error) {
			return gw.Verify(r.Context(), r.Header)
		})
	}
}

func forward(w http.ResponseWriter, call func() (*downstream.Response, error)) {
	resp, err := call()
	if err != nil {
		writeDownstreamError(w, err)
		return
	}
	writeDownstreamResponse(w, resp)
}
