// Package web serves the embedded marketing page, the admin login page and
// the admin shell.
package web

import (
	"embed"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dist
var content embed.FS

// UserFunc returns the authenticated principal of a request, or "" when the
// request carries no session.
type UserFunc func(r *http.Request) string

// Routes locates the pages within the site.
type Routes struct {
	LoginPath string
	AdminPath string
}

// DefaultRoutes matches the default gate rules.
func DefaultRoutes() Routes {
	return Routes{LoginPath: "/admin/login", AdminPath: "/admin"}
}

// Handler returns an http.Handler that serves the embedded pages and assets.
//
// When userFunc is provided, admin pages have a
// <meta name="portcullis-user" content="..."> tag injected before </head> so
// the shell can greet the signed-in principal without another round trip.
func Handler(routes Routes, userFunc UserFunc) (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}

	pages := make(map[string][]byte)
	for _, name := range []string{"index.html", "admin/index.html", "admin/login.html", "404.html"} {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded %s: %w", name, err)
		}
		pages[name] = b
	}

	static := http.FileServer(http.FS(fsys))

	servePage := func(w http.ResponseWriter, r *http.Request, name string, status int) {
		body := pages[name]
		if userFunc != nil && strings.HasPrefix(name, "admin/") {
			if user := userFunc(r); user != "" {
				tag := `<meta name="portcullis-user" content="` + html.EscapeString(user) + `">`
				body = []byte(strings.Replace(string(body), "</head>", tag+"\n  </head>", 1))
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write(body)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		switch {
		case p == "/" || p == "/index.html":
			servePage(w, r, "index.html", http.StatusOK)
			return
		case p == routes.LoginPath:
			servePage(w, r, "admin/login.html", http.StatusOK)
			return
		case strings.HasPrefix(p, "/assets/"):
			if _, err := fs.Stat(fsys, strings.TrimPrefix(p, "/")); err == nil {
				static.ServeHTTP(w, r)
				return
			}
		case p == routes.AdminPath || strings.HasPrefix(p, routes.AdminPath+"/"):
			// Admin deep-link fallback.
			servePage(w, r, "admin/index.html", http.StatusOK)
			return
		}
		servePage(w, r, "404.html", http.StatusNotFound)
	}), nil
}
