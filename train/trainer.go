// Package train fits a logistic-regression cell-type classifier and packages
// it, together with its scaler, into a celltype.Model.
package train

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/celltype"
	"github.com/YuminosukeSato/celltypist/core/model"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/preprocessing"
	"github.com/YuminosukeSato/celltypist/sklearn/linear_model"
)

// DateLayout is the format of the default model date.
const DateLayout = "2006-01-02 15:04:05.000000"

// Trainer は学習のハイパーパラメータを保持する
type Trainer struct {
	// SGD
	alpha       float64
	maxIter     int
	nJobs       int
	randomState uint64

	// ミニバッチ
	miniBatch   bool
	batchNumber int
	batchSize   int
	epochs      int

	// 特徴量選択
	featureSelection bool
	topGenes         int

	description celltype.Description
	now         func() time.Time
	logger      log.Logger
}

// Option は Trainer の設定オプション
type Option func(*Trainer)

// New は既定値の Trainer を作る
func New(options ...Option) *Trainer {
	t := &Trainer{
		alpha:       1e-4,
		maxIter:     1000,
		nJobs:       -1,
		batchNumber: 100,
		batchSize:   1000,
		epochs:      10,
		topGenes:    500,
		now:         time.Now,
		logger:      log.GetLoggerWithName("train"),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// WithAlpha sets the L2 regularization strength (default 1e-4).
func WithAlpha(alpha float64) Option {
	return func(t *Trainer) { t.alpha = alpha }
}

// WithMaxIter sets the maximum number of full-batch epochs (default 1000).
func WithMaxIter(n int) Option {
	return func(t *Trainer) { t.maxIter = n }
}

// WithNJobs sets the number of workers for one-vs-rest heads; -1 uses every CPU.
func WithNJobs(n int) Option {
	return func(t *Trainer) { t.nJobs = n }
}

// WithRandomState seeds SGD and the mini-batch shuffles.
func WithRandomState(seed uint64) Option {
	return func(t *Trainer) { t.randomState = seed }
}

// WithMiniBatch switches to mini-batch training with PartialFit.
func WithMiniBatch(enabled bool) Option {
	return func(t *Trainer) { t.miniBatch = enabled }
}

// WithBatchNumber caps the number of batches per epoch (default 100).
func WithBatchNumber(n int) Option {
	return func(t *Trainer) { t.batchNumber = n }
}

// WithBatchSize sets the cells per batch (default 1000).
func WithBatchSize(n int) Option {
	return func(t *Trainer) { t.batchSize = n }
}

// WithEpochs sets the number of mini-batch epochs (default 10).
func WithEpochs(n int) Option {
	return func(t *Trainer) { t.epochs = n }
}

// WithFeatureSelection enables a second round of training on the top genes.
func WithFeatureSelection(enabled bool) Option {
	return func(t *Trainer) { t.featureSelection = enabled }
}

// WithTopGenes sets the number of genes kept by feature selection (default 500).
func WithTopGenes(n int) Option {
	return func(t *Trainer) { t.topGenes = n }
}

// WithDescription sets the model description. An empty date is replaced by
// the training time.
func WithDescription(date, details, url string) Option {
	return func(t *Trainer) {
		t.description = celltype.Description{Date: date, Details: details, URL: url}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

func (t *Trainer) validate() error {
	if t.miniBatch {
		if t.batchSize < 1 {
			return errors.NewValidationError("batch_size", "must be positive", t.batchSize)
		}
		if t.batchNumber < 1 {
			return errors.NewValidationError("batch_number", "must be positive", t.batchNumber)
		}
		if t.epochs < 1 {
			return errors.NewValidationError("epochs", "must be positive", t.epochs)
		}
	}
	if t.featureSelection && t.topGenes < 1 {
		return errors.NewValidationError("top_genes", "must be positive", t.topGenes)
	}
	return nil
}

// Train fits a model on d.
//
// Genes that are never expressed are dropped, the rest are standardized with
// a clip at 10 and an SGD logistic regression is fitted. With feature
// selection the top genes by mean absolute weight are kept and both scaler
// and classifier are refitted on them.
func (t *Trainer) Train(d *Data) (*celltype.Model, error) {
	if d == nil {
		return nil, errors.NewMissingArgumentError("Train", "data", "prepared training data is required")
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	if n := len(d.Labels); t.miniBatch && n < t.batchSize {
		return nil, errors.NewInsufficientDataError("Train", t.batchSize, n,
			"decrease the batch size or train on the full batch")
	}
	start := time.Now()
	logger := t.logger.With(log.OperationKey, log.OperationFit, log.PhaseKey, log.PhaseTraining)

	X, genes := d.X, d.Genes
	keep := preprocessing.NonZeroColumns(X)
	if len(keep) == 0 {
		return nil, errors.NewInputFormatError("training data", "no gene is expressed in any cell")
	}
	if dropped := len(genes) - len(keep); dropped > 0 {
		logger.Info("Non-expressed genes are filtered out", "filtered", dropped)
		X = preprocessing.SelectColumns(X, keep)
		genes = preprocessing.SelectStrings(genes, keep)
	}

	logger.Info("Scaling input data", log.CellsKey, len(d.Labels), log.GenesKey, len(genes))
	scaler, Z, err := scale(X)
	if err != nil {
		return nil, err
	}

	clf, err := t.fit(Z, d.Labels, logger)
	if err != nil {
		return nil, err
	}

	if t.featureSelection {
		logger.Info("Selecting features", "top_genes", t.topGenes)
		w, err := clf.ExportWeights()
		if err != nil {
			return nil, err
		}
		selected, err := SelectFeatures(coefMatrix(w.Coef), t.topGenes)
		if err != nil {
			return nil, err
		}
		logger.Info("Features selected", log.GenesKey, len(selected))
		X = preprocessing.SelectColumns(X, selected)
		genes = preprocessing.SelectStrings(genes, selected)

		if scaler, Z, err = scale(X); err != nil {
			return nil, err
		}
		logger.Info("Starting the second round of training")
		if clf, err = t.fit(Z, d.Labels, logger); err != nil {
			return nil, err
		}
	}

	acc, err := clf.Score(Z, d.Labels)
	if err != nil {
		return nil, err
	}
	logger.Info("Training accuracy", log.AccuracyKey, acc)

	weights, err := clf.ExportWeights()
	if err != nil {
		return nil, err
	}
	desc := t.description
	if desc.Date == "" {
		desc.Date = t.now().Format(DateLayout)
	}
	m, err := celltype.NewModel(genes, weights, scaler, desc)
	if err != nil {
		return nil, err
	}

	logger.Info("Model training done",
		log.GenesKey, len(m.Genes),
		log.ClassesKey, len(m.Classes),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}

func scale(X *mat.Dense) (*preprocessing.StandardScaler, *mat.Dense, error) {
	scaler := preprocessing.NewStandardScalerDefault().WithMaxValue(preprocessing.DefaultMaxValue)
	if err := scaler.Fit(X); err != nil {
		return nil, nil, errors.Wrap(err, "fit scaler")
	}
	Z, err := scaler.TransformDense(X)
	if err != nil {
		return nil, nil, errors.Wrap(err, "scale training data")
	}
	return scaler, Z, nil
}

func (t *Trainer) classifier(logger log.Logger) model.OnlineClassifier {
	return linear_model.NewSGDClassifier(
		linear_model.WithAlpha(t.alpha),
		linear_model.WithMaxIter(t.maxIter),
		linear_model.WithNJobs(t.nJobs),
		linear_model.WithRandomState(t.randomState),
		linear_model.WithSGDLogger(logger),
	)
}

func (t *Trainer) fit(Z *mat.Dense, labels []string, logger log.Logger) (model.OnlineClassifier, error) {
	clf := t.classifier(logger)
	if !t.miniBatch {
		logger.Info("Training data using SGD logistic regression", log.AlphaKey, t.alpha, log.JobsKey, t.nJobs)
		if err := clf.Fit(Z, labels); err != nil {
			return nil, err
		}
		return clf, nil
	}

	logger.Info("Training data using mini-batch SGD logistic regression",
		log.AlphaKey, t.alpha,
		log.BatchSizeKey, t.batchSize,
	)
	n := len(labels)
	nBatches := min(t.batchNumber, (n+t.batchSize-1)/t.batchSize)
	classes := vocabulary(labels)

	rng := rand.New(rand.NewPCG(t.randomState, uint64(n)))
	for epoch := 1; epoch <= t.epochs; epoch++ {
		logger.Info("Epoch", log.EpochKey, epoch, "epochs", t.epochs)
		perm := rng.Perm(n)
		for b := 0; b < nBatches; b++ {
			rows := perm[b*t.batchSize : min((b+1)*t.batchSize, n)]
			Xb := preprocessing.SelectRows(Z, rows)
			yb := preprocessing.SelectStrings(labels, rows)
			if err := clf.PartialFit(Xb, yb, classes); err != nil {
				return nil, errors.Wrapf(err, "epoch %d batch %d", epoch, b)
			}
		}
	}
	return clf, nil
}

func coefMatrix(rows [][]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for k, row := range rows {
		m.SetRow(k, row)
	}
	return m
}

func vocabulary(labels []string) []string {
	set := make(map[string]struct{})
	for _, l := range labels {
		set[l] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// SelectFeatures ranks genes by the mean absolute weight over all rows of
// coef and returns the top k column indices in ascending order. Equal
// scores keep the lower index.
func SelectFeatures(coef mat.Matrix, k int) ([]int, error) {
	rows, cols := coef.Dims()
	if k >= cols {
		return nil, errors.NewInsufficientFeaturesError("SelectFeatures", k, cols)
	}
	score := make([]float64, cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			score[j] += math.Abs(coef.At(i, j))
		}
		score[j] /= float64(rows)
	}

	order := make([]int, cols)
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool { return score[order[a]] > score[order[b]] })
	top := order[:k]
	sort.Ints(top)
	return top, nil
}
