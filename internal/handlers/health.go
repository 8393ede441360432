package handlers

import "net/http"

// Health responds with the literal "OK" for liveness probes.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}
