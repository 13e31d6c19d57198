package fileserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newCorpus(t *testing.T) string {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "corpus")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tables basic.docx"), []byte("docx-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "legacy.doc"), []byte("doc-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("txt"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644))
	return root
}

func TestHandlerServesDocuments(t *testing.T) {
	t.Parallel()

	h := &Handler{Root: newCorpus(t)}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables%20basic.docx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, MIMEDocx, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	require.Contains(t, rec.Header().Get("Content-Disposition"), "tables basic.docx")
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "docx-bytes", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/legacy.doc", nil))
	require.Equal(t, MIMEDoc, rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notes.txt", nil))
	require.Equal(t, MIMEOctetStream, rec.Header().Get("Content-Type"))
}

func TestHandlerHeadHasNoBody(t *testing.T) {
	t.Parallel()

	h := &Handler{Root: newCorpus(t)}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/legacy.doc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "9", rec.Header().Get("Content-Length"))
	require.Empty(t, rec.Body.String())
}

func TestHandlerRejectsTraversal(t *testing.T) {
	t.Parallel()

	h := &Handler{Root: newCorpus(t)}
	for _, target := range []string{
		"/../../etc/passwd",
		"/%2e%2e/%2e%2e/etc/passwd",
		"/..%2fsecret.txt",
		"/../secret.txt",
		"/",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusForbidden, rec.Code, target)
		require.NotContains(t, rec.Body.String(), "secret", target)
	}
}

func TestHandlerNotFound(t *testing.T) {
	t.Parallel()

	h := &Handler{Root: newCorpus(t)}
	for _, target := range []string{"/missing.docx", "/nested"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestHandlerRejectsOtherMethods(t *testing.T) {
	t.Parallel()

	h := &Handler{Root: newCorpus(t)}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/legacy.doc", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartServesConcurrently(t *testing.T) {
	t.Parallel()

	srv, err := Start(newCorpus(t), "127.0.0.1:0", nil)
	require.NoError(t, err)
	defer srv.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.FileURL("tables basic.docx"))
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs <- err
				return
			}
			if string(body) != "docx-bytes" {
				errs <- io.ErrUnexpectedEOF
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestStartFailsWhenPortIsTaken(t *testing.T) {
	t.Parallel()

	root := newCorpus(t)
	first, err := Start(root, "127.0.0.1:0", nil)
	require.NoError(t, err)
	defer first.Close()

	addr := first.URL()[len("http://"):]
	_, err = Start(root, addr, nil)
	require.ErrorContains(t, err, "bind file server")
}

func TestFileURLEscapesSegments(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http://127.0.0.1:9090/sub/a%20b%23c.docx", FileURL("http://127.0.0.1:9090/", "sub/a b#c.docx"))
}
