// Package templates renders the dashboard page and the HTML fragments pushed
// over SSE.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"mart-segments/internal/models"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"

// Page carries what the shell needs before the first SSE refresh.
type Page struct {
	Title     string
	Source    string
	ItemTypes []string
	K         int
	SelectedK int
	MinK      int
	MaxK      int
}

// htmlWriter keeps the first write error so templates read top to bottom.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) printf(format string, args ...any) {
	hw.raw(fmt.Sprintf(format, args...))
}

func Dashboard(p Page) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		hw.raw(`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		hw.text(p.Title)
		hw.raw(`</title><script type="module" src="` + datastarScript + `"></script>`)
		hw.raw(`<style>` + styles + `</style></head>`)

		hw.printf(`<body data-signals="{k: %d, activeK: %d, itemType: 'All', selection: {k: %d, score: 0}, clusterStats: [], typeDistribution: []}" data-on-load="@get('/sse/refresh-all')">`, p.K, p.K, p.SelectedK)
		hw.raw(`<header><h1>`)
		hw.text(p.Title)
		hw.raw(`</h1>`)
		if p.Source != "" {
			hw.raw(`<p class="source">`)
			hw.text(p.Source)
			hw.raw(`</p>`)
		}
		hw.raw(`</header>`)

		hw.raw(`<section class="controls"><label>Clusters <select data-bind-k>`)
		for k := p.MinK; k <= p.MaxK; k++ {
			selected := ""
			if k == p.K {
				selected = " selected"
			}
			label := fmt.Sprint(k)
			if k == p.SelectedK {
				label += " (best silhouette)"
			}
			hw.printf(`<option value="%d"%s>`, k, selected)
			hw.text(label)
			hw.raw(`</option>`)
		}
		hw.raw(`</select></label>`)
		hw.raw(`<button data-on-click="@post('/sse/recluster')">Recluster</button>`)
		hw.raw(`<label>Item type <select data-bind-item-type><option value="All">All</option>`)
		for _, t := range p.ItemTypes {
			hw.raw(`<option value="`)
			hw.text(t)
			hw.raw(`">`)
			hw.text(t)
			hw.raw(`</option>`)
		}
		hw.raw(`</select></label><div id="recluster-status"></div></section>`)

		hw.raw(`<section class="charts">`)
		hw.raw(`<iframe id="projection-chart" src="/charts/projection" data-attr-src="'/charts/projection?item_type=' + encodeURIComponent($itemType) + '&rev=' + $activeK"></iframe>`)
		hw.raw(`<iframe id="store-mix-chart" src="/charts/store-mix" data-attr-src="'/charts/store-mix?rev=' + $activeK"></iframe>`)
		hw.raw(`</section>`)

		hw.raw(`<section><h2>Clusters</h2><p>Silhouette <span data-text="$selection.score?.toFixed(3)"></span>`)
		hw.raw(` at k=<span data-text="$selection.k"></span></p><div id="clusters-content">Loading...</div></section>`)

		hw.raw(`<section><h2>Store mix</h2><div id="store-mix-content">Loading...</div></section>`)
		hw.raw(`</body></html>`)
		return hw.err
	})
}

// StoreMixTable is the per-store cluster share table, limited to maxRows rows.
func StoreMixTable(stores []models.StoreSummary, k, maxRows int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div id="store-mix-content"><table class="modern-table"><thead><tr>`)
		hw.raw(`<th>Store</th><th>Type</th><th>Size</th><th>Location</th><th>Sales</th>`)
		for c := 0; c < k; c++ {
			hw.printf(`<th>Cluster %d</th>`, c)
		}
		hw.raw(`</tr></thead><tbody>`)
		for i, s := range stores {
			if i >= maxRows {
				break
			}
			hw.raw(`<tr><td>`)
			hw.text(s.OutletID)
			hw.raw(`</td><td><span class="category-badge">`)
			hw.text(s.OutletType)
			hw.raw(`</span></td><td>`)
			hw.text(s.OutletSize)
			hw.raw(`</td><td>`)
			hw.text(s.OutletLocation)
			hw.raw(`</td><td><strong>`)
			hw.text(humanize.CommafWithDigits(s.TotalSales, 2))
			hw.raw(`</strong></td>`)
			for c := 0; c < k; c++ {
				pct := 0.0
				if c < len(s.PctCluster) {
					pct = s.PctCluster[c]
				}
				hw.printf(`<td>%.1f%%</td>`, pct)
			}
			hw.raw(`</tr>`)
		}
		hw.raw(`</tbody></table></div>`)
		return hw.err
	})
}

// ClusterTable summarizes each cluster.
func ClusterTable(stats []models.ClusterStats) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div id="clusters-content"><table class="modern-table"><thead><tr>`)
		hw.raw(`<th>Cluster</th><th>Products</th><th>Avg sales</th><th>Total sales</th><th>Avg MRP</th><th>Avg stores</th><th>Top type</th>`)
		hw.raw(`</tr></thead><tbody>`)
		for _, s := range stats {
			hw.printf(`<tr><td>%d</td><td>%d</td><td>`, s.Cluster, s.NumProducts)
			hw.text(humanize.CommafWithDigits(s.AvgTotalSales, 2))
			hw.raw(`</td><td>`)
			hw.text(humanize.CommafWithDigits(s.SumTotalSales, 2))
			hw.printf(`</td><td>%.2f</td><td>%.1f</td><td><span class="category-badge">`, s.AvgMRP, s.AvgNumStores)
			hw.text(s.MostCommonType)
			hw.raw(`</span></td></tr>`)
		}
		hw.raw(`</tbody></table></div>`)
		return hw.err
	})
}

// Status is the recluster feedback line.
func Status(message string, failed bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		class := "ok"
		if failed {
			class = "error"
		}
		hw.printf(`<div id="recluster-status" class="%s">`, class)
		hw.text(message)
		hw.raw(`</div>`)
		return hw.err
	})
}

// RenderString renders c into a string for SSE patches.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const styles = `
body{font-family:system-ui,sans-serif;margin:0 auto;max-width:1200px;padding:1rem;color:#1f2933}
header .source{color:#616e7c;font-size:.9rem}
.controls{display:flex;gap:1rem;align-items:center;margin-bottom:1rem}
.charts{display:grid;grid-template-columns:1fr;gap:1rem}
.charts iframe{border:0;width:100%;height:560px}
.modern-table{border-collapse:collapse;width:100%}
.modern-table th,.modern-table td{padding:.4rem .6rem;border-bottom:1px solid #e4e7eb;text-align:left}
.category-badge{background:#e0e8f9;border-radius:4px;padding:0 .4rem}
#recluster-status.error{color:#ba2525}
#recluster-status.ok{color:#207227}
`
