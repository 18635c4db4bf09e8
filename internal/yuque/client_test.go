package yuque

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jcdickinson/kbpress/internal/toc"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"bad token"}`))
			return
		}
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := routes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Repo(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"/api/v2/repos/grp/book": `{"data":{"id":7,"name":"Book","slug":"book","namespace":"grp/book","description":"About"}}`,
	})
	c := NewClient(srv.URL+"/", "secret", 0)

	repo, err := c.Repo(context.Background(), "grp/book")
	if err != nil {
		t.Fatal(err)
	}
	if repo.ID != 7 || repo.Name != "Book" || repo.Description != "About" {
		t.Errorf("repo = %+v", repo)
	}
}

func TestClient_TOC(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"/api/v2/repos/grp/book/toc": `{"data":[
			{"type":"TITLE","title":"Book","level":0,"uuid":"r","child_uuid":"a"},
			{"type":"DOC","title":"Intro","level":1,"uuid":"a","url":"intro","doc_id":11},
			{"type":"LINK","title":"Site","level":1,"uuid":"b","url":"https://example.com"}
		]}`,
	})
	c := NewClient(srv.URL, "secret", 100)

	items, err := c.TOC(context.Background(), "grp/book")
	if err != nil {
		t.Fatal(err)
	}
	entries := Entries(items)
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Kind != toc.Title || !entries[0].OpensSubtree() {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Kind != toc.Doc || entries[1].DocID != 11 || entries[1].URL != "intro" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[2].Kind != toc.Link {
		t.Errorf("entry 2 kind = %v", entries[2].Kind)
	}
}

func TestClient_DocRaw(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"/api/v2/repos/grp/book/docs/11?raw=1": `{"data":{"id":11,"slug":"intro","title":"Intro","body":"# hi"}}`,
		"/api/v2/repos/grp/book/docs":          `{"data":[{"id":11,"slug":"intro","title":"Intro"}]}`,
	})
	c := NewClient(srv.URL, "secret", 0)

	doc, err := c.Doc(context.Background(), "grp/book", "11")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Body != "# hi" {
		t.Errorf("body = %q", doc.Body)
	}

	docs, err := c.Docs(context.Background(), "grp/book")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Slug != "intro" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	_, err := NewClient(srv.URL, "secret", 0).Repo(context.Background(), "grp/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	_, err = NewClient(srv.URL, "wrong", 0).Repo(context.Background(), "grp/book")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("err = %v, want 401 APIError", err)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(srv.URL, "secret", 1).TOC(ctx, "grp/book"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
