package httpapi

import "net/http"

// classifyError maps a core error to (status, message): "a failure
// returns HTTP 5xx with an error text" — the taxonomy informs the
// message, not the status code, which stays 5xx for every core failure.
// Transport-level failures caught before a core call even runs (bad
// JSON, missing auth headers) are written directly as 4xx by their own
// call sites.
func classifyError(err error) (int, string) {
	return http.StatusInternalServerError, err.Error()
}
