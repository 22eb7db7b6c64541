package signaling

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/1ureka/mirrorcast/internal/util"
)

// assetHandler serves the browser page from an fs.FS. "/" maps to
// index.html; a missing asset gets a 404 with a diagnostic body.
type assetHandler struct {
	files fs.FS
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := assetName(r.URL.Path)
	util.LogDebug("loading asset %s", name)

	data, err := fs.ReadFile(h.files, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrInvalid) {
			util.LogWarning("failed to load asset %s: %v", name, err)
		}
		writeText(w, http.StatusNotFound, "failed to load asset "+name)
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

// assetName maps a URL path to a name inside the asset FS.
func assetName(urlPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		return "index.html"
	}
	return name
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".ico":
		return "image/x-icon"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}
