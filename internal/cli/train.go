package cli

import (
	"fmt"
	"io"

	"github.com/YuminosukeSato/celltypist/dataio"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/train"
)

// TrainInvocation is a parsed "celltypist train" command line.
type TrainInvocation struct {
	Input     string
	Labels    string
	Genes     string
	Transpose bool
	Out       string

	Alpha   float64
	MaxIter int
	NJobs   int

	MiniBatch   bool
	BatchNumber int
	BatchSize   int
	Epochs      int

	FeatureSelection bool
	TopGenes         int

	Date    string
	Details string
	URL     string

	RandomState uint64
	LogLevel    string
}

// ParseTrain parses the flags of the train command.
func ParseTrain(args []string) (TrainInvocation, error) {
	fs, help := newFlagSet("train")
	var inv TrainInvocation
	fs.StringVar(&inv.Input, "input", "", "Expression file of the training cells. Required.")
	fs.StringVar(&inv.Labels, "labels", "", "Cell labels, one per line in cell order. Required.")
	fs.StringVar(&inv.Genes, "genes", "", "Gene names, one per line (required for mtx input).")
	fs.BoolVar(&inv.Transpose, "transpose", false, "Input is genes × cells.")
	fs.StringVar(&inv.Out, "out", "", "Model output path (.json or .json.gz). Required.")
	fs.Float64Var(&inv.Alpha, "alpha", 1e-4, "L2 regularization strength.")
	fs.IntVar(&inv.MaxIter, "max-iter", 1000, "Maximum number of epochs of full-batch SGD.")
	fs.IntVar(&inv.NJobs, "n-jobs", -1, "Workers for one-vs-rest training; -1 uses every CPU.")
	fs.BoolVar(&inv.MiniBatch, "mini-batch", false, "Train with mini-batch SGD.")
	fs.IntVar(&inv.BatchNumber, "batch-number", 100, "Batches per epoch.")
	fs.IntVar(&inv.BatchSize, "batch-size", 1000, "Cells per batch.")
	fs.IntVar(&inv.Epochs, "epochs", 10, "Mini-batch epochs.")
	fs.BoolVar(&inv.FeatureSelection, "feature-selection", false, "Retrain on the top genes.")
	fs.IntVar(&inv.TopGenes, "top-genes", 500, "Genes kept by feature selection.")
	fs.StringVar(&inv.Date, "date", "", "Model date; defaults to now.")
	fs.StringVar(&inv.Details, "details", "", "Model description.")
	fs.StringVar(&inv.URL, "url", "", "Model URL.")
	fs.Uint64Var(&inv.RandomState, "seed", 0, "Seed of SGD.")
	fs.StringVar(&inv.LogLevel, "log-level", "info", "debug, info, warn or error.")

	if err := parseFlags(fs, help, args); err != nil {
		return TrainInvocation{}, err
	}
	required := []struct{ name, value string }{
		{"--input", inv.Input},
		{"--labels", inv.Labels},
		{"--out", inv.Out},
	}
	for _, r := range required {
		if r.value == "" {
			return TrainInvocation{}, invalidInvocationf("%s is required", r.name)
		}
	}
	if inv.Alpha <= 0 {
		return TrainInvocation{}, invalidInvocationf("--alpha must be positive (got %g)", inv.Alpha)
	}
	if inv.MaxIter < 1 {
		return TrainInvocation{}, invalidInvocationf("--max-iter must be positive (got %d)", inv.MaxIter)
	}
	if inv.MiniBatch && (inv.BatchNumber < 1 || inv.BatchSize < 1 || inv.Epochs < 1) {
		return TrainInvocation{}, invalidInvocationf("--batch-number, --batch-size and --epochs must be positive")
	}
	if inv.FeatureSelection && inv.TopGenes < 1 {
		return TrainInvocation{}, invalidInvocationf("--top-genes must be positive (got %d)", inv.TopGenes)
	}
	return inv, nil
}

// RunTrain trains a model and saves it to inv.Out.
func RunTrain(inv TrainInvocation, stdout io.Writer) error {
	logger := log.GetLoggerWithName("celltypist").With(log.PhaseKey, log.PhaseTraining)

	labels, err := train.ReadLabels(inv.Labels)
	if err != nil {
		return err
	}
	loadOpts := []dataio.LoadOption{dataio.WithTranspose(inv.Transpose), dataio.WithLoadLogger(logger)}
	if inv.Genes != "" {
		genes, err := dataio.ReadLines(inv.Genes)
		if err != nil {
			return err
		}
		loadOpts = append(loadOpts, dataio.WithGenes(genes))
	}
	data, err := train.Load(inv.Input, labels, loadOpts...)
	if err != nil {
		return err
	}

	m, err := train.New(
		train.WithAlpha(inv.Alpha),
		train.WithMaxIter(inv.MaxIter),
		train.WithNJobs(inv.NJobs),
		train.WithMiniBatch(inv.MiniBatch),
		train.WithBatchNumber(inv.BatchNumber),
		train.WithBatchSize(inv.BatchSize),
		train.WithEpochs(inv.Epochs),
		train.WithFeatureSelection(inv.FeatureSelection),
		train.WithTopGenes(inv.TopGenes),
		train.WithDescription(inv.Date, inv.Details, inv.URL),
		train.WithRandomState(inv.RandomState),
		train.WithLogger(logger),
	).Train(data)
	if err != nil {
		return err
	}
	if err := m.Save(inv.Out); err != nil {
		return err
	}
	logger.Info("Model saved", log.PathKey, inv.Out)

	fmt.Fprintf(stdout, "model with %d genes and %d cell types written to %s\n", len(m.Genes), len(m.Classes), inv.Out)
	return nil
}
