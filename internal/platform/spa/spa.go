package spa

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handler serves a built single-page app from fsys. Unknown paths fall back to
// index.html so client-side routes work; /api/ paths never do.
func Handler(fsys fs.FS) gin.HandlerFunc {
	fileFS := http.FS(fsys)

	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}

		reqPath := strings.TrimPrefix(path.Clean("/"+c.Request.URL.Path), "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		if serveFile(c, fileFS, reqPath) {
			return
		}
		if serveFile(c, fileFS, "index.html") {
			return
		}
		c.Status(http.StatusNotFound)
	}
}

func serveFile(c *gin.Context, fileFS http.FileSystem, name string) bool {
	f, err := fileFS.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		c.Header("Content-Type", ct)
	}
	// hashed build assets never change; index.html must always be revalidated
	if name == "index.html" {
		c.Header("Cache-Control", "no-cache")
	} else {
		c.Header("Cache-Control", "public, max-age=86400, immutable")
	}
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
	return true
}
