// Package httpx adapts handlers that return errors to net/http, so a
// handler can say what went wrong and leave the status code mapping here.
// see https://blog.questionable.services/article/http-handler-error-handling-revisited/
package httpx

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-json-experiment/json"
)

// Error wraps err with the HTTP status code it should produce.
func Error(code int, err error) error {
	return &StatusError{code, err}
}

// StatusError is an error with an associated HTTP status code.
type StatusError struct {
	Code int
	Err  error
}

func (se *StatusError) Error() string {
	return se.Err.Error()
}

// Status returns the HTTP status code.
func (se *StatusError) Status() int {
	return se.Code
}

// HandlerFunc adapts a handler taking an environment and returning an
// error to an http.HandlerFunc. Errors carrying a StatusError produce
// that status; anything else is a 500.
func HandlerFunc[E any](envFn func(r *http.Request) *E, fn func(*E, http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(envFn(r), w, r)
		if err == nil {
			return
		}
		status := http.StatusInternalServerError
		if se := new(StatusError); errors.As(err, &se) {
			status = se.Status()
		}
		log.Printf("http: %s %s: %d: %s", r.Method, r.URL.Path, status, err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		json.MarshalFull(w, map[string]any{
			"error": err.Error(),
		})
	}
}

// Redirect returns a 302 redirect to the specified URI.
func Redirect(w http.ResponseWriter, uri string) error {
	w.Header().Set("Location", uri)
	w.WriteHeader(302)
	return nil
}
