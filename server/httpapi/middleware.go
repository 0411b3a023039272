package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

type contextKey string

const (
	ctxKeyClient contextKey = "api_client"
	ctxKeyBody   contextKey = "request_body"
	ctxKeySession contextKey = "session"
)

// GetClientFromContext returns the authenticated API client from the
// request context.
func GetClientFromContext(ctx context.Context) *APIClient {
	client, _ := ctx.Value(ctxKeyClient).(*APIClient)
	return client
}

// GetBodyFromContext returns the cached request body from the context.
func GetBodyFromContext(ctx context.Context) string {
	body, _ := ctx.Value(ctxKeyBody).(string)
	return body
}

// GetSessionFromContext returns the session attached by SessionMiddleware,
// if any.
func GetSessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKeySession).(*Session)
	return sess
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[HTTP API] panic recovered: %v", err)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Error: "internal server error",
					Code:  http.StatusInternalServerError,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware adds CORS headers.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+headerAPIKey+", "+headerTimestamp+", "+headerNonce+", "+headerSignature+", Authorization, Cookie")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		client := GetClientFromContext(r.Context())
		clientName := "-"
		if client != nil {
			clientName = client.Name
		}

		log.Printf("[HTTP API] %s %s %s %d %s", clientName, r.Method, r.URL.Path, wrapped.statusCode, duration)
	})
}

// AuthMiddleware validates the API key and HMAC signature for the
// service-to-service sync/table endpoints.
func AuthMiddleware(store *ClientStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(headerAPIKey)
			if apiKey == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "missing X-API-Key header",
					Code:  http.StatusUnauthorized,
				})
				return
			}

			client, err := store.GetClient(apiKey)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: err.Error(),
					Code:  http.StatusUnauthorized,
				})
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{
					Error: "failed to read request body",
					Code:  http.StatusBadRequest,
				})
				return
			}

			timestamp := r.Header.Get(headerTimestamp)
			nonce := r.Header.Get(headerNonce)
			signature := r.Header.Get(headerSignature)

			if timestamp == "" || nonce == "" || signature == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "missing signature headers (X-Timestamp, X-Nonce, X-Signature)",
					Code:  http.StatusUnauthorized,
				})
				return
			}

			if err := ValidateSignature(client.APISecret, r.Method, r.URL.Path, timestamp, nonce, string(body), signature); err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "signature verification failed: " + err.Error(),
					Code:  http.StatusUnauthorized,
				})
				return
			}

			// Restore r.Body from the bytes already consumed for signature
			// verification, so a multipart handler downstream (sync,
			// saveBinary) can still parse it.
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := context.WithValue(r.Context(), ctxKeyClient, client)
			ctx = context.WithValue(ctx, ctxKeyBody, string(body))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware attaches the session named by the sessionCookieName
// cookie to the request context, if present and not expired. Unlike
// AuthMiddleware it never rejects the request outright — a handler that
// requires a session checks GetSessionFromContext itself, the same
// "handler decides" shape GetClientFromContext uses. No handler currently
// requires one; /logout reads the session cookie directly and succeeds
// without it.
func SessionMiddleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				if sess, err := store.Get(r.Context(), cookie.Value); err == nil && sess != nil {
					ctx := context.WithValue(r.Context(), ctxKeySession, sess)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a core error to an HTTP status using the error
// taxonomy and writes it as an ErrorResponse.
func writeError(w http.ResponseWriter, err error) {
	status, msg := classifyError(err)
	writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}
