package gateway

import (
	"html/template"
	"net/http"
)

type page struct {
	Title    string
	Message  string
	LinkURL  string
	LinkText string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- if .LinkURL}}
<p><a href="{{.LinkURL}}">{{.LinkText}}</a></p>
{{- end}}
</body>
</html>
`))

func renderPage(w http.ResponseWriter, status int, p page) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}
