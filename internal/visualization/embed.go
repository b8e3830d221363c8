package visualization

import "embed"

// templates holds the page rendered by RenderHTML and served by Server.
//
//go:embed templates/network.html.tmpl
var templates embed.FS
