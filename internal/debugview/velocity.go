// Package debugview renders diagnostic pages and images for the debug
// routes: a velocity history chart and a plot of the active walls.
package debugview

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/navmap/internal/telemetry"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// VelocityChart renders an HTML page charting linear and angular velocity
// over the given samples.
func VelocityChart(samples []telemetry.VelocitySample) ([]byte, error) {
	x := make([]string, 0, len(samples))
	linear := make([]opts.LineData, 0, len(samples))
	angular := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, s.At.Format("15:04:05.000"))
		linear = append(linear, opts.LineData{Value: s.Velocity.Linear.X})
		angular = append(angular, opts.LineData{Value: s.Velocity.Angular.Z})
	}

	subtitle := "no samples yet"
	if n := len(samples); n > 0 {
		subtitle = fmt.Sprintf("samples=%d last=%s", n, samples[n-1].At.Format(time.RFC3339))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Robot Velocity", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Robot Velocity", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s | rad/s", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("linear.x", linear).
		AddSeries("angular.z", angular)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render velocity chart: %w", err)
	}
	return buf.Bytes(), nil
}
