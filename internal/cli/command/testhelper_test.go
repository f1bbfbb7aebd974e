package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockServer serves canned envelope responses keyed by "METHOD path".
type mockServer struct {
	*httptest.Server
	handlers map[string]http.HandlerFunc
}

func newMockServer() *mockServer {
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m.handlers[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		envelope(w, http.StatusNotFound, "DR-DOC-4040", "not found", nil)
	}))
	return m
}

func (m *mockServer) handle(method, path string, h http.HandlerFunc) {
	m.handlers[method+" "+path] = h
}

// envelope writes a response in the server's wrapper format.
func envelope(w http.ResponseWriter, status int, code, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    data,
	})
}

// runApp runs docrelayctl against srv and captures stdout.
func runApp(t *testing.T, srv *mockServer, args ...string) (string, error) {
	t.Helper()
	app := App()
	var buf bytes.Buffer
	app.Writer = &buf

	full := append([]string{"docrelayctl", "--server", srv.URL}, args...)
	err := app.Run(full)
	return buf.String(), err
}

func assertContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("output %q does not contain %q", got, want)
	}
}
