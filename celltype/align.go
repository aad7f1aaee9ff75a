package celltype

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/preprocessing"
)

// Alignment maps the genes shared by a model and an input matrix.
// Both slices are in model gene order and have the same length.
type Alignment struct {
	// InputColumns are column indices into the input matrix.
	InputColumns []int
	// ModelIndices are positions in the model gene list.
	ModelIndices []int
}

// Len returns the number of shared genes.
func (a *Alignment) Len() int {
	return len(a.InputColumns)
}

// AlignGenes intersects modelGenes with inputGenes. Both lists must be
// non-empty and free of duplicates.
func AlignGenes(modelGenes, inputGenes []string) (*Alignment, error) {
	if len(modelGenes) == 0 {
		return nil, errors.NewInvalidModelError("genes", "model has no genes")
	}
	if len(inputGenes) == 0 {
		return nil, errors.NewInputFormatError("expression matrix", "input has no genes")
	}

	inputIndex := make(map[string]int, len(inputGenes))
	for j, g := range inputGenes {
		if _, dup := inputIndex[g]; dup {
			return nil, errors.NewInputFormatErrorf("expression matrix", "duplicate gene %q in input", g)
		}
		inputIndex[g] = j
	}

	seen := make(map[string]struct{}, len(modelGenes))
	a := &Alignment{}
	for i, g := range modelGenes {
		if _, dup := seen[g]; dup {
			return nil, errors.NewInvalidModelError("genes", "duplicate gene %q", g)
		}
		seen[g] = struct{}{}
		if j, ok := inputIndex[g]; ok {
			a.InputColumns = append(a.InputColumns, j)
			a.ModelIndices = append(a.ModelIndices, i)
		}
	}
	if a.Len() == 0 {
		return nil, errors.NewFeatureMismatchError(len(modelGenes), len(inputGenes))
	}
	return a, nil
}

// ModelView is a model restricted and reordered to the genes of one input
// matrix. It is built from copies and never written back to the Model.
type ModelView struct {
	Genes     []string
	Classes   []string
	Coef      *mat.Dense // rows × shared genes
	Intercept []float64
	Mean      []float64
	Scale     []float64

	alignment *Alignment
}

// Align builds the view of m for an input with the given gene names.
// A partial overlap is logged as a warning and the run continues.
func (m *Model) Align(inputGenes []string, logger log.Logger) (*ModelView, error) {
	if logger == nil {
		logger = log.GetLoggerWithName("celltype")
	}
	a, err := AlignGenes(m.Genes, inputGenes)
	if err != nil {
		return nil, err
	}

	n := a.Len()
	v := &ModelView{
		Genes:     make([]string, n),
		Classes:   append([]string(nil), m.Classes...),
		Coef:      mat.NewDense(len(m.Coef), n, nil),
		Intercept: append([]float64(nil), m.Intercept...),
		Mean:      make([]float64, n),
		Scale:     make([]float64, n),
		alignment: a,
	}
	for k, i := range a.ModelIndices {
		v.Genes[k] = m.Genes[i]
		v.Mean[k] = m.ScalerMean[i]
		v.Scale[k] = m.ScalerScale[i]
		for r := range m.Coef {
			v.Coef.Set(r, k, m.Coef[r][i])
		}
	}

	if n < m.NFeatures() {
		logger.Warn("Only part of the model genes are present in the input",
			log.OverlapKey, n,
			log.GenesKey, m.NFeatures(),
		)
	} else {
		logger.Debug("All model genes found in the input", log.GenesKey, n)
	}
	return v, nil
}

// Alignment returns the gene mapping the view was built from.
func (v *ModelView) Alignment() *Alignment {
	return v.alignment
}

// Select picks the shared gene columns of X in model order.
func (v *ModelView) Select(X mat.Matrix) (*mat.Dense, error) {
	_, c := X.Dims()
	for _, j := range v.alignment.InputColumns {
		if j >= c {
			return nil, errors.NewDimensionError("ModelView.Select", j+1, c, 1)
		}
	}
	return preprocessing.SelectColumns(X, v.alignment.InputColumns), nil
}
