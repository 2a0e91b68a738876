// package to contains functions for writing values to HTTP responses.
package to

import (
	"net/http"

	"github.com/go-json-experiment/json"
)

// JSON writes the given object to the response body as JSON.
// If obj is a nil slice, an empty JSON array is written.
// If obj is a nil map, an empty JSON object is written.
// If obj is a nil pointer, a null is written.
func JSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return marshal(w, obj)
}

// ActivityJSON writes the given object as an ActivityStreams JSON-LD document.
func ActivityJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	return marshal(w, obj)
}

// JRD writes the given object as a JSON Resource Descriptor, the content
// type webfinger responses are served with.
func JRD(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", "application/jrd+json; charset=utf-8")
	return marshal(w, obj)
}

func marshal(w http.ResponseWriter, obj any) error {
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "  ",
	}, w, obj)
}
