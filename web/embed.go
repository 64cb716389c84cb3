// Package web holds the chat UI served at the site root.
package web

import "embed"

//go:embed index.html app.js style.css
var FS embed.FS
