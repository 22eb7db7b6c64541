// Package web bundles the browser page that places the call.
package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed www
var content embed.FS

// Assets returns the bundled page, or the contents of dir when it is set.
func Assets(dir string) (fs.FS, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrInvalid}
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(content, "www")
}
