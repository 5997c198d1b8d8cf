// curves renders training reports as go-echarts pages.
package curves

import (
	"fmt"
	"io"

	"miner/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// MAX_POINTS bounds the number of points per series; episodes are averaged in buckets.
const MAX_POINTS = 200

// Curve is a bucket-averaged learning curve.
type Curve struct {
	// Labels holds the last episode number of each bucket.
	Labels  []string
	Steps   []float64
	Rewards []float64
	Epsilon []float64
}

// LearningCurve averages the report's episodes into at most MAX_POINTS buckets.
func LearningCurve(report *reinforcement.TrainingReport) (curve Curve) {
	n := len(report.Episodes)
	if n == 0 {
		return
	}
	bucket := (n + MAX_POINTS - 1) / MAX_POINTS

	for start := 0; start < n; start += bucket {
		end := start + bucket
		if end > n {
			end = n
		}
		var steps, reward float64
		for _, ep := range report.Episodes[start:end] {
			steps += float64(ep.Steps)
			reward += ep.Reward
		}
		count := float64(end - start)
		curve.Labels = append(curve.Labels, fmt.Sprintf("%d", end))
		curve.Steps = append(curve.Steps, steps/count)
		curve.Rewards = append(curve.Rewards, reward/count)
		curve.Epsilon = append(curve.Epsilon, report.Episodes[end-1].Epsilon)
	}
	return
}

func lineData(vals []float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(vals))
	for _, v := range vals {
		items = append(items, opts.LineData{Value: v})
	}
	return items
}

func newLine(title, subtitle string, curve Curve) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)
	return line.SetXAxis(curve.Labels)
}

// Render writes an html page with the learning curves of the report.
func Render(w io.Writer, report *reinforcement.TrainingReport) error {
	curve := LearningCurve(report)
	subtitle := fmt.Sprintf("%d episodes, %d states, %d truncated",
		len(report.Episodes), report.States, report.Truncated)

	steps := newLine("Steps per episode", subtitle, curve)
	steps.AddSeries("steps", lineData(curve.Steps))

	rewards := newLine("Reward per episode", subtitle, curve)
	rewards.AddSeries("reward", lineData(curve.Rewards))

	epsilon := newLine("Exploration rate", subtitle, curve)
	epsilon.AddSeries("epsilon", lineData(curve.Epsilon))

	page := components.NewPage()
	page.AddCharts(
		steps,
		rewards,
		epsilon,
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
