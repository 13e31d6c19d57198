package fileserver

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/fsutil"
)

const (
	MIMEDocx        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDoc         = "application/msword"
	MIMEOctetStream = "application/octet-stream"
)

// Handler serves files below Root. It holds no mutable state, so concurrent requests are
// never serialised.
type Handler struct {
	Root   string
	Logger *zap.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rel, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	path, err := fsutil.SafeJoin(h.Root, rel)
	if err != nil {
		h.logger().Warn("rejected path outside corpus", zap.String("path", rel))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", ContentType(name))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := f.WriteTo(w); err != nil {
		h.logger().Debug("serve file interrupted", zap.String("file", name), zap.Error(err))
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// ContentType maps a document file name to the MIME type the document server expects.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		return MIMEDocx
	case ".doc":
		return MIMEDoc
	default:
		return MIMEOctetStream
	}
}

// Server is a running file server.
type Server struct {
	srv     *http.Server
	ln      net.Listener
	baseURL string
	done    chan error
}

// Start binds addr (for example "127.0.0.1:9090") and serves root in a background goroutine.
// A bind failure is returned immediately.
func Start(root, addr string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus directory %s is not a directory", root)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind file server on %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           &Handler{Root: root, Logger: logger},
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln:      ln,
		baseURL: "http://" + ln.Addr().String(),
		done:    make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	logger.Info("file server listening", zap.String("url", s.baseURL), zap.String("root", root))
	return s, nil
}

// URL returns the base URL, e.g. http://127.0.0.1:9090.
func (s *Server) URL() string {
	return s.baseURL
}

// FileURL returns the URL of a corpus file with the name percent-encoded.
func (s *Server) FileURL(file string) string {
	return FileURL(s.baseURL, file)
}

// FileURL joins a base URL and a corpus file name, escaping each path segment.
func FileURL(base, file string) string {
	parts := strings.Split(filepath.ToSlash(file), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// Close shuts the server down, waiting up to five seconds for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		_ = s.srv.Close()
		return err
	}
	return <-s.done
}
