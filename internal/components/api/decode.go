package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/appctx"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// DecodeJSON reads r's body into v. An empty body leaves v untouched and is
// not an error. On failure it writes a 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, ReasonBadRequest, "request body too large")
		return false
	}
	WriteBadRequest(w, ReasonBadRequest, "failed to parse request body")
	return false
}

// RequireActor returns the authenticated caller, writing a 401 when the
// request carries none.
func RequireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := appctx.ActorID(r.Context())
	if !ok || actor == "" {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return "", false
	}
	return actor, true
}
