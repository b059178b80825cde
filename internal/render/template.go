package render

import (
	"encoding/base64"
	"html/template"
	"strings"

	"outfit2pdf/internal/layout"
)

// The page template instantiates one fixed 4×2 grid per page. Empty slots
// render as invisible cards so the grid keeps its shape on the last page.
const pageTemplate = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, "Segoe UI", system-ui, sans-serif; background: #ffffff; }
  .page { page-break-after: always; padding: 28px 32px; height: 100vh; display: flex; flex-direction: column; }
  .page:last-child { page-break-after: auto; }
  .description {
    font-size: 20px; font-weight: 600; letter-spacing: 0.08em;
    text-transform: uppercase; text-align: center; margin-bottom: 20px;
  }
  .grid {
    flex: 1; display: grid; gap: 18px;
    grid-template-columns: repeat(4, 1fr);
    grid-template-rows: repeat(2, 1fr);
  }
  .card { display: flex; flex-direction: column; align-items: center; overflow: hidden; }
  .card a { display: block; flex: 1; width: 100%; text-decoration: none; }
  .card .frame { flex: 1; width: 100%; display: flex; align-items: center; justify-content: center; }
  .card img { max-width: 100%; max-height: 100%; object-fit: contain; }
  .card .name {
    font-size: 12px; font-weight: 500; letter-spacing: 0.04em;
    text-transform: uppercase; text-align: center; margin-top: 8px;
  }
  .card .price { font-size: 12px; font-weight: 600; text-align: center; margin-top: 2px; }
  .card-empty { visibility: hidden; }
</style>
</head>
<body>
{{- range .Pages}}
<section class="page">
  {{- if $.Description}}
  <h1 class="description">{{$.Description}}</h1>
  {{- end}}
  <div class="grid">
    {{- range .Cards}}
    <div class="card">
      {{- if .Link}}
      <a href="{{.Link}}"><span class="frame"><img src="{{.ImageSrc}}" alt="{{.Name}}"></span></a>
      {{- else}}
      <span class="frame"><img src="{{.ImageSrc}}" alt="{{.Name}}"></span>
      {{- end}}
      <div class="name">{{.Name}}</div>
      <div class="price">{{.Price}}</div>
    </div>
    {{- end}}
    {{- range .Blanks}}
    <div class="card card-empty"></div>
    {{- end}}
  </div>
</section>
{{- end}}
</body>
</html>
`

var tmpl = template.Must(template.New("catalog").Parse(pageTemplate))

type cardView struct {
	Name     string
	Price    string
	Link     string
	ImageSrc template.URL
}

type pageView struct {
	Cards  []cardView
	Blanks []struct{}
}

type documentView struct {
	Description string
	Pages       []pageView
}

// BuildHTML renders the page model into a self-contained HTML document.
// Images are inlined as data URIs so Chrome performs no network fetches.
func BuildHTML(pages []layout.Page, description string) (string, error) {
	doc := documentView{Description: description}
	for _, p := range pages {
		pv := pageView{Blanks: make([]struct{}, p.EmptySlots())}
		for _, c := range p.Cards {
			src := "data:" + c.Image.ContentType + ";base64," + base64.StdEncoding.EncodeToString(c.Image.Bytes)
			pv.Cards = append(pv.Cards, cardView{
				Name:     c.Item.Name,
				Price:    c.Item.Price,
				Link:     c.Item.Link,
				ImageSrc: template.URL(src),
			})
		}
		doc.Pages = append(doc.Pages, pv)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}
