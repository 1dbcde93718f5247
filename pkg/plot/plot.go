// Package plot renders the projected conformations as a labeled
// scatter chart and writes it out as SVG plus a high-resolution PNG.
package plot

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Fixed viewing angles for the 3D variant, radians. These match the
// default matplotlib-style view (30° elevation, -60° azimuth).
const (
	elevation = 30 * math.Pi / 180
	azimuth   = -60 * math.Pi / 180
)

// Config carries all render state explicitly; there is no package-level
// style to mutate.
type Config struct {
	Project     string // output file stem
	OutDir      string
	DPI         int    // raster resolution for the PNG
	MetricLabel string // colormap legend text, e.g. "Tanimoto coefficient"
	Width       vg.Length
	Height      vg.Length
}

func DefaultConfig(project string) Config {
	return Config{
		Project: project,
		OutDir:  ".",
		DPI:     800,
		Width:   10 * vg.Inch,
		Height:  8 * vg.Inch,
	}
}

// MetricAxisLabel maps a metric name onto its display label.
func MetricAxisLabel(metric string) string {
	switch metric {
	case "tanimoto":
		return "Tanimoto coefficient"
	case "jaccard":
		return "Jaccard distance"
	default:
		return metric
	}
}

// Render draws the projected coordinates and writes
// <project>_PCA.{svg,png} (2D) or <project>_PCA3D.{svg,png} (3D).
//
// Conformations named in templates are drawn as black triangles and
// never color-mapped, even when a metric value exists for them. The
// remaining points are circles, colored by metric on a fixed [0,1]
// scale when metric is non-nil and drawn uniformly otherwise. Every
// point is annotated with its label, except empty-string labels.
// percents are the variance percentages for the axis titles.
func Render(cfg Config, proj *mat.Dense, percents []float64, labels []string, metric []float64, templates map[string]bool) error {
	n, dim := proj.Dims()
	if dim != 2 && dim != 3 {
		return fmt.Errorf("cannot render a %d-component projection", dim)
	}
	if len(labels) != n {
		return fmt.Errorf("have %d labels for %d points", len(labels), n)
	}
	if metric != nil && len(metric) != n {
		return fmt.Errorf("have %d metric values for %d points", len(metric), n)
	}
	if len(percents) != dim {
		return fmt.Errorf("have %d variance percentages for %d components", len(percents), dim)
	}

	points := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		points[i] = canvasXY(proj, i, dim)
	}

	conf, tmpl := splitPoints(points, labels, metric, templates)

	p := plot.New()
	p.X.Label.Text = fmt.Sprintf("PC1 (%g %%)", percents[0])
	p.Y.Label.Text = fmt.Sprintf("PC2 (%g %%)", percents[1])
	if dim == 3 {
		// The canvas is 2D after projection, so PC3 goes in the title.
		p.Title.Text = fmt.Sprintf("PCA 3D, PC3 (%g %%)", percents[2])
	} else {
		p.Title.Text = "PCA 2D"
	}

	if len(conf.xys) > 0 {
		scatter, err := plotter.NewScatter(conf.xys)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(7)
		scatter.GlyphStyle.Color = color.Black

		if conf.metric != nil {
			colors := moreland.ExtendedBlackBody()
			colors.SetMin(0)
			colors.SetMax(1)
			values := conf.metric
			scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
				return draw.GlyphStyle{
					Color:  metricColor(colors, values[i]),
					Radius: vg.Points(7),
					Shape:  draw.CircleGlyph{},
				}
			}
			if cfg.MetricLabel != "" {
				p.Legend.Add(cfg.MetricLabel+" [0,1]", scatter)
			}
		}
		p.Add(scatter)
	}

	if len(tmpl.xys) > 0 {
		scatter, err := plotter.NewScatter(tmpl.xys)
		if err != nil {
			return err
		}
		scatter.GlyphStyle = draw.GlyphStyle{
			Color:  color.Black,
			Radius: vg.Points(8),
			Shape:  draw.PyramidGlyph{},
		}
		p.Add(scatter)
		p.Legend.Add("template", scatter)
	}

	if err := addLabels(p, points, labels); err != nil {
		return err
	}

	stem := cfg.Project + "_PCA"
	if dim == 3 {
		stem = cfg.Project + "_PCA3D"
	}
	if err := p.Save(cfg.Width, cfg.Height, filepath.Join(cfg.OutDir, stem+".svg")); err != nil {
		return err
	}
	return savePNG(cfg, p, filepath.Join(cfg.OutDir, stem+".png"))
}

// canvasXY places row i of the projection on the 2D canvas. Two
// components map directly; three go through a fixed-angle orthographic
// projection, the moral equivalent of the 3D backend's own transform.
func canvasXY(proj *mat.Dense, i, dim int) plotter.XY {
	x := proj.At(i, 0)
	y := proj.At(i, 1)
	if dim == 2 {
		return plotter.XY{X: x, Y: y}
	}
	z := proj.At(i, 2)
	u := x*math.Cos(azimuth) - y*math.Sin(azimuth)
	depth := x*math.Sin(azimuth) + y*math.Cos(azimuth)
	v := depth*math.Sin(elevation) + z*math.Cos(elevation)
	return plotter.XY{X: u, Y: v}
}

type pointGroup struct {
	xys    plotter.XYs
	metric []float64
}

// splitPoints divides the points into the template group and the
// general group. Template membership wins over everything: a template
// with a metric value keeps its fixed marker and the value is unused.
func splitPoints(points plotter.XYs, labels []string, metric []float64, templates map[string]bool) (conf, tmpl pointGroup) {
	for i, pt := range points {
		if templates[labels[i]] {
			tmpl.xys = append(tmpl.xys, pt)
			continue
		}
		conf.xys = append(conf.xys, pt)
		if metric != nil {
			conf.metric = append(conf.metric, metric[i])
		}
	}
	return conf, tmpl
}

func addLabels(p *plot.Plot, points plotter.XYs, labels []string) error {
	var annotated plotter.XYLabels
	for i, label := range labels {
		if label == "" {
			continue
		}
		annotated.XYs = append(annotated.XYs, points[i])
		annotated.Labels = append(annotated.Labels, label)
	}
	if len(annotated.Labels) == 0 {
		return nil
	}

	l, err := plotter.NewLabels(annotated)
	if err != nil {
		return err
	}
	p.Add(l)
	return nil
}

func metricColor(colors palette.ColorMap, v float64) color.Color {
	if math.IsNaN(v) {
		return color.Gray{Y: 128}
	}
	c, err := colors.At(math.Max(0, math.Min(1, v)))
	if err != nil {
		return color.Gray{Y: 128}
	}
	return c
}

func savePNG(cfg Config, p *plot.Plot, path string) error {
	canvas := vgimg.NewWith(
		vgimg.UseWH(cfg.Width, cfg.Height),
		vgimg.UseDPI(cfg.DPI),
	)
	p.Draw(draw.New(canvas))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	png := vgimg.PngCanvas{Canvas: canvas}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
