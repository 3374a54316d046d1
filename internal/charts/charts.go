// Package charts builds the dashboard's echarts views from segmentation
// results.
package charts

import (
	"fmt"
	"math"

	echarts "github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"mart-segments/internal/models"
)

const (
	chartWidth  = "900px"
	chartHeight = "520px"
	stackName   = "share"
)

func initOpts(title string) echarts.GlobalOpts {
	return echarts.WithInitializationOpts(opts.Initialization{
		PageTitle: title,
		Width:     chartWidth,
		Height:    chartHeight,
	})
}

func clusterName(c int) string {
	return fmt.Sprintf("Cluster %d", c)
}

// Projection plots products on their first two principal components with
// one series per cluster. Products without a projection are skipped.
func Projection(products []models.ProductFeatures, k int, subtitle string) *echarts.Scatter {
	scatter := echarts.NewScatter()
	scatter.SetGlobalOptions(
		initOpts("Product segments"),
		echarts.WithTitleOpts(opts.Title{Title: "Product segments (PCA)", Subtitle: subtitle}),
		echarts.WithXAxisOpts(opts.XAxis{Name: "PC1", Type: "value"}),
		echarts.WithYAxisOpts(opts.YAxis{Name: "PC2", Type: "value"}),
	)

	series := make([][]opts.ScatterData, k)
	for _, p := range products {
		if len(p.Projection) < 2 || p.Cluster < 0 || p.Cluster >= k {
			continue
		}
		series[p.Cluster] = append(series[p.Cluster], opts.ScatterData{
			Name:  p.ItemID,
			Value: []interface{}{round(p.Projection[0]), round(p.Projection[1])},
		})
	}
	for c, points := range series {
		scatter.AddSeries(clusterName(c), points)
	}
	return scatter
}

// StoreMix stacks each store's sales share per cluster.
func StoreMix(stores []models.StoreSummary, k int) *echarts.Bar {
	bar := echarts.NewBar()
	bar.SetGlobalOptions(
		initOpts("Store cluster mix"),
		echarts.WithTitleOpts(opts.Title{Title: "Sales share by cluster", Subtitle: "percent of labeled store sales"}),
		echarts.WithYAxisOpts(opts.YAxis{Name: "%", Type: "value", Max: 100}),
	)

	ids := make([]string, len(stores))
	for i, s := range stores {
		ids[i] = s.OutletID
	}
	bar.SetXAxis(ids)

	for c := 0; c < k; c++ {
		data := make([]opts.BarData, len(stores))
		for i, s := range stores {
			v := 0.0
			if c < len(s.PctCluster) {
				v = s.PctCluster[c]
			}
			data[i] = opts.BarData{Name: s.OutletID, Value: round(v)}
		}
		bar.AddSeries(clusterName(c), data, echarts.WithBarChartOpts(opts.BarChart{Stack: stackName}))
	}
	return bar
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
