package pipeline

import "html/template"

var codeviewPageTmpl = template.Must(template.New("codeview-page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Path}} - three.js source</title>
<style>
body { margin: 0; font-family: sans-serif; }
header { padding: 8px 16px; background: #222; color: #eee; }
header a { color: #9cf; }
pre { margin: 0; padding: 16px; font-size: 13px; line-height: 1.4; overflow-x: auto; }
</style>
</head>
<body>
<header><a href="{{.Root}}codeview/index.html">source</a> / {{.Path}} (<a href="{{.Root}}{{.Path}}">raw</a>)</header>
<pre><code>{{.Source}}</code></pre>
</body>
</html>
`))

var codeviewIndexTmpl = template.Must(template.New("codeview-index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>three.js source</title>
</head>
<body>
<h1>three.js source</h1>
<p><a href="../index.html">home</a> &middot; {{len .Files}} files</p>
<ul>
{{- range .Files}}
<li><a href="{{.}}.html">{{.}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

var rootIndexTmpl = template.Must(template.New("root-index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { max-width: 960px; margin: 0 auto; padding: 16px; font-family: sans-serif; }
nav ul { display: flex; flex-wrap: wrap; gap: 12px; list-style: none; padding: 0; }
.build { color: #666; font-size: 12px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<nav>
<ul>
{{- range .Sections}}
<li><a href="{{.Dir}}/">{{.Title}}</a></li>
{{- end}}
</ul>
</nav>
{{- if .Minimal}}
<p class="build">Reduced build: some sections may be missing or out of date.</p>
{{- end}}
<main>
{{.Readme}}
</main>
<p class="build">Generated {{.Generated}}</p>
</body>
</html>
`))
