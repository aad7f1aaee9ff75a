package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/YuminosukeSato/celltypist/annotate"
	"github.com/YuminosukeSato/celltypist/celltype"
	"github.com/YuminosukeSato/celltypist/dataio"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/viz"
)

// PredictInvocation is a parsed "celltypist predict" command line.
type PredictInvocation struct {
	Input    string
	Model    string
	GeneFile string
	CellFile string

	Transpose      bool
	Normalized     bool
	MajorityVoting bool
	Resolution     float64

	OutDir      string
	Prefix      string
	Excel       bool
	PlotResults bool
	PlotFormat  string

	RandomState uint64
	LogLevel    string
}

// ParsePredict parses the flags of the predict command.
func ParsePredict(args []string) (PredictInvocation, error) {
	fs, help := newFlagSet("predict")
	var inv PredictInvocation
	fs.StringVar(&inv.Input, "input", "", "Expression file (.csv, .tsv, .txt, .tab, .mtx, .mtx.gz). Required.")
	fs.StringVar(&inv.Model, "model", "", "Model file (.json or .json.gz). Required.")
	fs.StringVar(&inv.GeneFile, "gene-file", "", "Gene names of an mtx input, one per line.")
	fs.StringVar(&inv.CellFile, "cell-file", "", "Cell names of an mtx input, one per line.")
	fs.BoolVar(&inv.Transpose, "transpose", false, "Input is genes × cells.")
	fs.BoolVar(&inv.Normalized, "normalized", false, "Input is already log1p normalized to 10,000 counts per cell.")
	fs.BoolVar(&inv.MajorityVoting, "majority-voting", false, "Refine the labels by over-clustering and majority voting.")
	fs.Float64Var(&inv.Resolution, "over-clustering-resolution", 0, "Louvain resolution; 0 chooses it from the number of cells.")
	fs.StringVar(&inv.OutDir, "outdir", ".", "Existing directory for the output tables.")
	fs.StringVar(&inv.Prefix, "prefix", "", "Prefix of the output file names.")
	fs.BoolVar(&inv.Excel, "xlsx", false, "Write one Excel workbook instead of CSV tables.")
	fs.BoolVar(&inv.PlotResults, "plot-results", false, "Also plot the results.")
	fs.StringVar(&inv.PlotFormat, "plot-format", "png", "Figure format: png, pdf or svg.")
	fs.Uint64Var(&inv.RandomState, "seed", 0, "Seed of the over-clustering.")
	fs.StringVar(&inv.LogLevel, "log-level", "info", "debug, info, warn or error.")

	if err := parseFlags(fs, help, args); err != nil {
		return PredictInvocation{}, err
	}
	if inv.Input == "" {
		return PredictInvocation{}, invalidInvocationf("--input is required")
	}
	if inv.Model == "" {
		return PredictInvocation{}, invalidInvocationf("--model is required")
	}
	if inv.Resolution < 0 {
		return PredictInvocation{}, invalidInvocationf("--over-clustering-resolution must not be negative (got %g)", inv.Resolution)
	}
	switch inv.PlotFormat {
	case "png", "pdf", "svg":
	default:
		return PredictInvocation{}, invalidInvocationf("--plot-format must be png, pdf or svg (got %q)", inv.PlotFormat)
	}
	inv.OutDir = filepath.Clean(inv.OutDir)
	return inv, nil
}

// RunPredict annotates the input and writes the tables (and figures) into
// the output directory. A one-line summary goes to stdout.
func RunPredict(inv PredictInvocation, stdout io.Writer) error {
	logger := log.GetLoggerWithName("celltypist").With(log.PhaseKey, log.PhaseInference)

	m, err := celltype.Load(inv.Model)
	if err != nil {
		return err
	}
	logger.Info("Model loaded",
		log.PathKey, inv.Model,
		log.GenesKey, m.NFeatures(),
		log.ClassesKey, len(m.Classes),
	)

	ds, err := dataio.Load(inv.Input,
		dataio.WithTranspose(inv.Transpose),
		dataio.WithGeneFile(inv.GeneFile),
		dataio.WithCellFile(inv.CellFile),
		dataio.WithNormalized(inv.Normalized),
		dataio.WithLoadLogger(logger),
	)
	if err != nil {
		return err
	}

	a, err := annotate.New(m,
		annotate.WithMajorityVoting(inv.MajorityVoting),
		annotate.WithResolution(inv.Resolution),
		annotate.WithRandomState(inv.RandomState),
		annotate.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	res, err := a.Annotate(ds)
	if err != nil {
		return err
	}

	paths, err := res.WriteTables(inv.OutDir, annotate.ExportOptions{Prefix: inv.Prefix, Excel: inv.Excel})
	if err != nil {
		return err
	}
	for _, p := range paths {
		logger.Info("Output written", log.PathKey, p)
	}

	if inv.PlotResults {
		figures, err := viz.NewPlotter(viz.WithFormat(inv.PlotFormat), viz.WithLogger(logger)).
			PlotResults(res, inv.OutDir, inv.Prefix)
		if err != nil {
			return err
		}
		logger.Info("Figures written", "figures", len(figures))
	}

	fmt.Fprintln(stdout, res.String())
	return nil
}
