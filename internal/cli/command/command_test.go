package command

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestDocList(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	srv.handle(http.MethodGet, "/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, "OK", "", map[string]any{
			"ids":   []string{"doc-a", "doc-b"},
			"total": 2,
		})
	})

	out, err := runApp(t, srv, "doc", "list")
	if err != nil {
		t.Fatalf("doc list: %v", err)
	}
	assertContains(t, out, "doc-a")
	assertContains(t, out, "doc-b")
	assertContains(t, out, "2 document(s)")
}

func TestDocGetJSON(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	srv.handle(http.MethodGet, "/v1/documents/doc-a", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, "OK", "", map[string]any{
			"id":          "doc-a",
			"history_len": 3,
			"content":     map[string]any{"title": "hello"},
		})
	})

	out, err := runApp(t, srv, "--output", "json", "doc", "get", "doc-a")
	if err != nil {
		t.Fatalf("doc get: %v", err)
	}

	var doc documentView
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if doc.ID != "doc-a" || doc.HistoryLen != 3 {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Content["title"] != "hello" {
		t.Errorf("content = %v", doc.Content)
	}
}

func TestDocCreate(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()

	var gotBody map[string]any
	srv.handle(http.MethodPut, "/v1/documents/doc-a", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		envelope(w, http.StatusCreated, "OK", "", map[string]any{"id": "doc-a"})
	})

	out, err := runApp(t, srv, "doc", "create", "doc-a", "title=hello", "count=3")
	if err != nil {
		t.Fatalf("doc create: %v", err)
	}
	assertContains(t, out, "created document doc-a")

	initial, ok := gotBody["initial"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v, want initial map", gotBody)
	}
	if initial["title"] != "hello" {
		t.Errorf("initial title = %v", initial["title"])
	}
	if initial["count"] != float64(3) {
		t.Errorf("initial count = %v, want numeric 3", initial["count"])
	}
}

func TestDocSetRequiresFields(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()

	if _, err := runApp(t, srv, "doc", "set", "doc-a"); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestDocDeleteNotFound(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()

	_, err := runApp(t, srv, "doc", "delete", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "DR-DOC-4040") {
		t.Errorf("error = %v, want server code", err)
	}
}

func TestRouteRegister(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()

	var gotBody map[string]any
	srv.handle(http.MethodPost, "/v1/routes", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		envelope(w, http.StatusCreated, "OK", "", map[string]any{
			"id":    "01ROUTE",
			"route": "/apps/app",
		})
	})

	// Flag parsing stops at the first positional argument, so the route
	// comes last.
	out, err := runApp(t, srv, "route", "register",
		"--bundle-name", "app", "--bundle-path", "/opt/bundles/app", "/apps/app")
	if err != nil {
		t.Fatalf("route register: %v", err)
	}
	assertContains(t, out, "registered route /apps/app")
	if gotBody["bundle_path"] != "/opt/bundles/app" {
		t.Errorf("body = %v", gotBody)
	}
	if gotBody["route"] != "/apps/app" {
		t.Errorf("route = %v", gotBody["route"])
	}
}

func TestRouteList(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	srv.handle(http.MethodGet, "/v1/routes", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, "OK", "", map[string]any{
			"routes": []map[string]any{
				{"id": "01ROUTE", "route": "/apps/app", "bundle_name": "app", "is_running": true},
			},
			"total": 1,
		})
	})

	out, err := runApp(t, srv, "route", "list")
	if err != nil {
		t.Fatalf("route list: %v", err)
	}
	assertContains(t, out, "/apps/app")
	assertContains(t, out, "true")
}

func TestBackupStatusDisabled(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	srv.handle(http.MethodGet, "/v1/backup/status", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, "OK", "", map[string]any{"enabled": false})
	})

	out, err := runApp(t, srv, "backup", "status")
	if err != nil {
		t.Fatalf("backup status: %v", err)
	}
	assertContains(t, out, "backup is disabled")
}

func TestBackupFlushFailure(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	srv.handle(http.MethodPost, "/v1/backup/flush", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusBadGateway, "DR-BAK-5020", "backup upload failed", nil)
	})

	_, err := runApp(t, srv, "backup", "flush")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "DR-BAK-5020") {
		t.Errorf("error = %v", err)
	}
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "typed scalars",
			args: []string{"title=hello", "count=3", "ratio=0.5", "done=true"},
			want: map[string]any{"title": "hello", "count": int64(3), "ratio": 0.5, "done": true},
		},
		{
			name: "empty value",
			args: []string{"note="},
			want: map[string]any{"note": ""},
		},
		{
			name:    "missing separator",
			args:    []string{"title"},
			wantErr: true,
		},
		{
			name:    "empty key",
			args:    []string{"=value"},
			wantErr: true,
		},
		{
			name: "no args",
			args: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFields(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFields: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %s = %v (%T), want %v (%T)", k, got[k], got[k], v, v)
				}
			}
		})
	}
}
