// Package viz draws annotation results as scatter plots over a 2-D
// embedding of the cells.
package viz

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/celltypist/annotate"
	"github.com/YuminosukeSato/celltypist/metrics"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/sklearn/neighbors"
)

// Plotter は結果のプロット設定
type Plotter struct {
	format       string
	width        vg.Length
	height       vg.Length
	radius       vg.Length
	probability  bool
	graphOptions []neighbors.GraphOption
	logger       log.Logger
}

// Option は Plotter の設定オプション
type Option func(*Plotter)

// NewPlotter は既定値（PNG、6×6 インチ、確率プロットあり）の Plotter を返す
func NewPlotter(options ...Option) *Plotter {
	p := &Plotter{
		format:      "png",
		width:       6 * vg.Inch,
		height:      6 * vg.Inch,
		radius:      vg.Points(1.5),
		probability: true,
		logger:      log.GetLoggerWithName("viz"),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// WithFormat sets the image format: png, pdf, svg, jpg, eps or tif.
func WithFormat(format string) Option {
	return func(p *Plotter) { p.format = strings.ToLower(strings.TrimPrefix(format, ".")) }
}

// WithSize sets the figure size.
func WithSize(width, height vg.Length) Option {
	return func(p *Plotter) { p.width, p.height = width, height }
}

// WithPointRadius sets the glyph radius of each cell.
func WithPointRadius(r vg.Length) Option {
	return func(p *Plotter) { p.radius = r }
}

// WithProbability toggles one plot per class probability.
func WithProbability(enabled bool) Option {
	return func(p *Plotter) { p.probability = enabled }
}

// WithGraphOptions configures the graph builder used when the dataset has
// no embedding yet.
func WithGraphOptions(opts ...neighbors.GraphOption) Option {
	return func(p *Plotter) { p.graphOptions = append(p.graphOptions, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Plotter) { p.logger = l }
}

// PlotResults writes one figure per label column and, optionally, one per
// class probability into dir. The cells are placed at the first two
// components of the dataset embedding, which is computed when missing.
// It returns the files written.
func (p *Plotter) PlotResults(res *annotate.AnnotationResult, dir, prefix string) ([]string, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.NewInputFormatError(dir, "output folder does not exist")
	}
	if res == nil || res.Dataset == nil {
		return nil, errors.NewMissingArgumentError("PlotResults", "dataset", "the result must carry its input dataset")
	}
	ds := res.Dataset
	if ds.Embedding == nil {
		p.logger.Info("Constructing the embedding for plotting")
		opts := append([]neighbors.GraphOption{neighbors.WithGraphLogger(p.logger)}, p.graphOptions...)
		nb, err := neighbors.NewGraphBuilder(opts...).Build(ds.X)
		if err != nil {
			return nil, err
		}
		ds.Embedding = nb.Embedding
		if ds.Graph == nil {
			ds.Graph = nb.Graph
		}
	} else {
		p.logger.Info("Detected an existing embedding, plotting on it")
	}
	xy, err := coordinates(ds.Embedding, res.NCells())
	if err != nil {
		return nil, err
	}

	p.logger.Info("Plotting the results", log.PathKey, dir, log.FormatKey, p.format)
	var written []string
	for _, col := range res.LabelColumns() {
		path := filepath.Join(dir, prefix+col.Name+"."+p.format)
		if err := p.plotLabels(path, col.Name, xy, col.Values); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if p.probability {
		for k, class := range res.Classes {
			path := filepath.Join(dir, prefix+strings.ReplaceAll(class, "/", "_")+"."+p.format)
			if err := p.plotProbability(path, class, xy, mat.Col(nil, k, res.Probabilities)); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

// coordinates は埋め込みの先頭2列を取り出す。1列しかなければ y は 0。
func coordinates(embedding *mat.Dense, n int) (plotter.XYs, error) {
	r, c := embedding.Dims()
	if r != n {
		return nil, errors.NewDimensionMismatchError("PlotResults", "embedding rows", "", n, r)
	}
	if c == 0 {
		return nil, errors.NewInsufficientFeaturesError("PlotResults", 1, 0)
	}
	xy := make(plotter.XYs, n)
	for i := range xy {
		xy[i].X = embedding.At(i, 0)
		if c > 1 {
			xy[i].Y = embedding.At(i, 1)
		}
	}
	return xy, nil
}

func (p *Plotter) newPlot(title string) *plot.Plot {
	plt := plot.New()
	plt.Title.Text = title
	plt.X.Label.Text = "PC1"
	plt.Y.Label.Text = "PC2"
	plt.Legend.Top = true
	plt.Legend.Left = false
	return plt
}

// plotLabels はラベルごとに色分けした散布図を描く。凡例は多い順。
func (p *Plotter) plotLabels(path, title string, xy plotter.XYs, labels []string) error {
	plt := p.newPlot(title)
	freq := metrics.Frequencies(labels)
	palette := Palette(len(freq))

	byLabel := make(map[string]plotter.XYs, len(freq))
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], xy[i])
	}
	for k, f := range freq {
		s, err := plotter.NewScatter(byLabel[f.Label])
		if err != nil {
			return errors.Wrapf(err, "scatter %s", f.Label)
		}
		s.GlyphStyle.Color = palette[k]
		s.GlyphStyle.Radius = p.radius
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		plt.Add(s)
		plt.Legend.Add(f.Label, s)
	}
	return p.save(plt, path)
}

// plotProbability は確率に応じたグラデーションで細胞を塗る
func (p *Plotter) plotProbability(path, title string, xy plotter.XYs, proba []float64) error {
	plt := p.newPlot(title)
	s, err := plotter.NewScatter(xy)
	if err != nil {
		return errors.Wrapf(err, "scatter %s", title)
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{Color: Gradient(proba[i]), Radius: p.radius, Shape: draw.CircleGlyph{}}
	}
	plt.Add(s)
	return p.save(plt, path)
}

func (p *Plotter) save(plt *plot.Plot, path string) error {
	if err := plt.Save(p.width, p.height, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	p.logger.Debug("Figure written", log.PathKey, path)
	return nil
}

// Palette returns n distinct colours with evenly spaced hues.
func Palette(n int) []color.Color {
	out := make([]color.Color, n)
	for i := range out {
		h := 360 * float64(i) / float64(max(n, 1))
		out[i] = colorful.Hcl(h, 0.6, 0.65).Clamped()
	}
	return out
}

var (
	gradientLow  = colorful.Color{R: 0.85, G: 0.85, B: 0.85}
	gradientHigh = colorful.Color{R: 0.7, G: 0.05, B: 0.1}
)

// Gradient maps a probability in [0, 1] onto a grey to red scale.
func Gradient(p float64) color.Color {
	if math.IsNaN(p) {
		p = 0
	}
	p = math.Max(0, math.Min(1, p))
	return gradientLow.BlendLab(gradientHigh, p).Clamped()
}
