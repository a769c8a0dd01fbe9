package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcoot/arenaengine/internal/api/apierr"
)

// errBadBody is reported for request bodies that are not valid JSON
var errBadBody = apierr.NewInvalidRequestError("invalid request body")

func writeError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

func badRequest(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// decodeBody reads a JSON body into v. An empty body is accepted only when
// optional is set, leaving v untouched.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case optional && errors.Is(err, io.EOF):
		return nil
	default:
		return errBadBody
	}
}
