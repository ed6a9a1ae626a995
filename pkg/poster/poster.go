// Package poster renders a deal group into a shareable image by
// screenshotting a generated HTML card in headless Chrome.
package poster

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"dealhunter-base/pkg/models"
)

const posterTemplate = `<!DOCTYPE html>
<html>
<head>
<style>
  body { margin: 0; width: 1080px; height: 1080px; font-family: 'Segoe UI', Arial, sans-serif;
         background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%); color: #fff; }
  .card { padding: 60px; }
  h1 { font-size: 56px; margin: 0 0 40px; color: #ffd369; }
  .deal { background: rgba(255,255,255,0.08); border-radius: 18px; padding: 28px; margin-bottom: 24px; }
  .deal .title { font-size: 34px; font-weight: 600; }
  .deal .price { font-size: 30px; margin-top: 10px; }
  .deal .off { color: #ff6b6b; font-weight: 700; margin-left: 16px; }
  .strike { text-decoration: line-through; opacity: 0.6; font-size: 24px; margin-left: 12px; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Title}}</h1>
  {{range .Items}}
  <div class="deal">
    <div class="title">{{.Title}}</div>
    <div class="price">{{.Currency}}{{.Price}}<span class="strike">{{.Currency}}{{.OriginalPrice}}</span><span class="off">{{.DiscountPercent}}% OFF</span></div>
  </div>
  {{end}}
</div>
</body>
</html>`

var cardTmpl = template.Must(template.New("poster").Parse(posterTemplate))

// Renderer screenshots deal cards into OutputDir.
type Renderer struct {
	OutputDir string
	Timeout   time.Duration
}

func NewRenderer(outputDir string) *Renderer {
	return &Renderer{
		OutputDir: outputDir,
		Timeout:   60 * time.Second,
	}
}

type cardData struct {
	Title string
	Items []models.ProductRecord
}

// GeneratePoster renders group into a PNG and returns its path.
func (r *Renderer) GeneratePoster(ctx context.Context, group *models.DealGroup) (string, error) {
	if group == nil || len(group.Items) == 0 {
		return "", fmt.Errorf("group has no items to render")
	}

	items := group.Items
	if len(items) > 4 {
		items = items[:4]
	}
	shortened := make([]models.ProductRecord, len(items))
	for i, it := range items {
		shortened[i] = it
		shortened[i].Title = shortTitle(it.Title)
	}

	var html strings.Builder
	if err := cardTmpl.Execute(&html, cardData{Title: group.Title, Items: shortened}); err != nil {
		return "", err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1080, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	renderCtx, cancelRender := context.WithTimeout(browserCtx, r.Timeout)
	defer cancelRender()

	dataURL := "data:text/html;charset=utf-8," + url.PathEscape(html.String())

	var buf []byte
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return "", fmt.Errorf("rendering poster: %w", err)
	}

	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.OutputDir, fmt.Sprintf("poster_%s.png", group.ID))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}

	log.Printf("Poster: rendered %s for group %s", path, group.ID)
	return path, nil
}

// shortTitle keeps card lines readable.
func shortTitle(t string) string {
	if len(t) <= 48 {
		return t
	}
	return strings.TrimSpace(t[:45]) + "..."
}
