package linear_model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/core/model"
	"github.com/YuminosukeSato/celltypist/core/parallel"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
)

// 勾配のクリップ上限（scikit-learn の MAX_DLOSS と同じ）
const maxDLoss = 1e12

// SGDClassifier は L2 正則化付きロジスティック損失を確率的勾配降下法で最小化する線形分類器
// scikit-learnの SGDClassifier(loss="log_loss", penalty="l2", learning_rate="optimal") と互換性を持つ
//
// 多クラスでは one-vs-rest で各クラスのヘッドを独立に学習し、nJobs 個のワーカーで並列化する。
// 2クラスでは classes[1] を正例とする1ヘッドだけを学習する。
type SGDClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	alpha         float64 // L2 正則化の強さ
	maxIter       int     // 最大エポック数
	tol           float64 // 収束判定の許容誤差
	nIterNoChange int     // 改善しないエポックがこの回数続いたら停止
	shuffle       bool    // 各エポックでデータをシャッフルするか
	fitIntercept  bool    // 切片を学習するか
	nJobs         int     // 並列ワーカー数（-1 で CPU 数）
	randomState   uint64  // 乱数シード

	logger log.Logger

	// 学習パラメータ
	mu         sync.RWMutex
	classes    []string
	classIndex map[string]int
	coef       [][]float64 // ヘッド数 × 特徴量数
	intercept  []float64
	t          []float64 // ヘッドごとのステップ数（学習率スケジュール用）
	nIter      int
	nCalls     uint64 // PartialFit の呼び出し回数（乱数系列の分岐に使う）
}

var _ model.OnlineClassifier = (*SGDClassifier)(nil)

// SGDOption は SGDClassifier の設定オプション
type SGDOption func(*SGDClassifier)

// NewSGDClassifier は新しいSGDClassifierを作成
func NewSGDClassifier(options ...SGDOption) *SGDClassifier {
	clf := &SGDClassifier{
		state:         model.NewStateManager(),
		alpha:         1e-4,
		maxIter:       1000,
		tol:           1e-3,
		nIterNoChange: 5,
		shuffle:       true,
		fitIntercept:  true,
		nJobs:         1,
		randomState:   0,
		logger:        log.GetLoggerWithName("linear_model"),
	}

	for _, opt := range options {
		opt(clf)
	}

	return clf
}

// WithAlpha は L2 正則化の強さを設定
func WithAlpha(alpha float64) SGDOption {
	return func(c *SGDClassifier) { c.alpha = alpha }
}

// WithMaxIter は最大エポック数を設定
func WithMaxIter(maxIter int) SGDOption {
	return func(c *SGDClassifier) { c.maxIter = maxIter }
}

// WithTol は収束判定の許容誤差を設定（0 以下で無効）
func WithTol(tol float64) SGDOption {
	return func(c *SGDClassifier) { c.tol = tol }
}

// WithNIterNoChange は早期終了までの非改善エポック数を設定
func WithNIterNoChange(n int) SGDOption {
	return func(c *SGDClassifier) { c.nIterNoChange = n }
}

// WithShuffle はエポックごとのシャッフルを設定
func WithShuffle(shuffle bool) SGDOption {
	return func(c *SGDClassifier) { c.shuffle = shuffle }
}

// WithFitIntercept は切片を学習するかを設定
func WithFitIntercept(fit bool) SGDOption {
	return func(c *SGDClassifier) { c.fitIntercept = fit }
}

// WithNJobs は one-vs-rest ヘッドの並列ワーカー数を設定
func WithNJobs(n int) SGDOption {
	return func(c *SGDClassifier) { c.nJobs = n }
}

// WithRandomState は乱数シードを設定
func WithRandomState(seed uint64) SGDOption {
	return func(c *SGDClassifier) { c.randomState = seed }
}

// WithSGDLogger はロガーを設定
func WithSGDLogger(logger log.Logger) SGDOption {
	return func(c *SGDClassifier) { c.logger = logger }
}

func (c *SGDClassifier) validateParams() error {
	if c.alpha <= 0 || math.IsNaN(c.alpha) {
		return errors.NewValidationError("alpha", "must be positive", c.alpha)
	}
	if c.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", c.maxIter)
	}
	if c.nIterNoChange <= 0 {
		return errors.NewValidationError("n_iter_no_change", "must be positive", c.nIterNoChange)
	}
	return nil
}

// Fit はモデルを訓練データで学習させる。既存のパラメータは破棄される。
func (c *SGDClassifier) Fit(X mat.Matrix, y []string) error {
	if err := c.validateParams(); err != nil {
		return err
	}
	rows, err := checkXy("SGDClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return errors.NewValidationError("y", "at least 2 classes are required", classes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, nFeatures := X.Dims()
	c.init(classes, nFeatures)
	c.state.SetDimensions(nFeatures, len(rows))

	nHeads := len(c.coef)
	epochs := make([]int, nHeads)
	converged := make([]bool, nHeads)
	_ = parallel.ForEach(nHeads, c.nJobs, func(k int) error {
		rng := rand.New(rand.NewPCG(c.randomState, uint64(k)))
		target := c.headTarget(k, y)
		epochs[k], converged[k] = c.sgd(k, rows, target, c.maxIter, true, rng)
		return nil
	})

	c.nIter = slices.Max(epochs)
	for k := range converged {
		if !converged[k] && c.tol > 0 {
			errors.Warn(errors.NewConvergenceWarning("SGDClassifier", c.maxIter,
				fmt.Sprintf("head %q did not converge; consider increasing max_iter", c.headName(k))))
		}
	}
	if err := c.checkFinite("SGDClassifier.Fit"); err != nil {
		return err
	}

	c.state.SetFitted()
	c.logger.Debug("SGD fit completed",
		log.ModelNameKey, "SGDClassifier",
		log.OperationKey, log.OperationFit,
		log.CellsKey, len(rows),
		log.GenesKey, nFeatures,
		log.ClassesKey, len(c.classes),
		log.EpochKey, c.nIter,
	)
	return nil
}

// PartialFit は与えられたサンプルで1エポックのSGDを実行する。
// classes は最初の呼び出しで必須で、以降は省略するか同じ集合を渡す。
func (c *SGDClassifier) PartialFit(X mat.Matrix, y []string, classes []string) error {
	if err := c.validateParams(); err != nil {
		return err
	}
	rows, err := checkXy("SGDClassifier.PartialFit", X, y)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, nFeatures := X.Dims()
	if !c.state.IsFitted() {
		if len(classes) == 0 {
			return errors.NewMissingArgumentError("SGDClassifier.PartialFit", "classes", "required on the first call")
		}
		sorted := uniqueSorted(classes)
		if len(sorted) < 2 {
			return errors.NewValidationError("classes", "at least 2 classes are required", sorted)
		}
		c.init(sorted, nFeatures)
		c.state.SetDimensions(nFeatures, 0)
	} else {
		if len(classes) > 0 && !slices.Equal(uniqueSorted(classes), c.classes) {
			return errors.NewValidationError("classes", "must match the classes of the first PartialFit call", classes)
		}
		if err := c.state.RequireFeatures("SGDClassifier.PartialFit", nFeatures); err != nil {
			return err
		}
	}
	for _, label := range y {
		if _, ok := c.classIndex[label]; !ok {
			return errors.NewValidationError("y", "label is not in classes", label)
		}
	}

	c.nCalls++
	call := c.nCalls
	_ = parallel.ForEach(len(c.coef), c.nJobs, func(k int) error {
		rng := rand.New(rand.NewPCG(c.randomState+call, uint64(k)))
		c.sgd(k, rows, c.headTarget(k, y), 1, false, rng)
		return nil
	})
	c.nIter++
	if err := c.checkFinite("SGDClassifier.PartialFit"); err != nil {
		return err
	}

	c.state.AddSamples(len(rows))
	c.state.SetFitted()
	return nil
}

// init はクラス集合に合わせてパラメータを初期化する
func (c *SGDClassifier) init(classes []string, nFeatures int) {
	c.classes = classes
	c.classIndex = make(map[string]int, len(classes))
	for i, cl := range classes {
		c.classIndex[cl] = i
	}
	nHeads := len(classes)
	if nHeads == 2 {
		nHeads = 1
	}
	c.coef = make([][]float64, nHeads)
	for k := range c.coef {
		c.coef[k] = make([]float64, nFeatures)
	}
	c.intercept = make([]float64, nHeads)
	c.t = make([]float64, nHeads)
	for k := range c.t {
		c.t[k] = 1
	}
	c.nIter = 0
	c.nCalls = 0
}

func (c *SGDClassifier) headName(k int) string {
	if len(c.classes) == 2 {
		return c.classes[1]
	}
	return c.classes[k]
}

// headTarget はヘッド k の二値ターゲット (+1/-1) を返す
func (c *SGDClassifier) headTarget(k int, y []string) []float64 {
	positive := c.headName(k)
	target := make([]float64, len(y))
	for i, label := range y {
		if label == positive {
			target[i] = 1
		} else {
			target[i] = -1
		}
	}
	return target
}

// sgd はヘッド k に対して最大 epochs エポックのSGDを実行し、実行エポック数と収束したかを返す
func (c *SGDClassifier) sgd(k int, rows [][]float64, target []float64, epochs int, checkConvergence bool, rng *rand.Rand) (int, bool) {
	w := c.coef[k]
	n := len(rows)

	// learning_rate="optimal" の初期化（Bottou の経験則）
	typw := math.Sqrt(1.0 / math.Sqrt(c.alpha))
	eta0 := typw / math.Max(1.0, math.Abs(logDLoss(-typw, 1.0)))
	optimalInit := 1.0 / (eta0 * c.alpha)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	noImprovement := 0
	for epoch := 0; epoch < epochs; epoch++ {
		if c.shuffle {
			rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		sumLoss := 0.0
		for _, i := range order {
			x := rows[i]
			yi := target[i]
			p := floats.Dot(w, x) + c.intercept[k]
			sumLoss += logLoss(p, yi)

			eta := 1.0 / (c.alpha * (optimalInit + c.t[k] - 1))
			dloss := math.Max(-maxDLoss, math.Min(maxDLoss, logDLoss(p, yi)))
			update := -eta * dloss

			floats.Scale(math.Max(0, 1-eta*c.alpha), w)
			if update != 0 {
				floats.AddScaled(w, update, x)
				if c.fitIntercept {
					c.intercept[k] += update
				}
			}
			c.t[k]++
		}

		if checkConvergence && c.tol > 0 {
			if sumLoss > bestLoss-c.tol*float64(n) {
				noImprovement++
			} else {
				noImprovement = 0
			}
			if sumLoss < bestLoss {
				bestLoss = sumLoss
			}
			if noImprovement >= c.nIterNoChange {
				return epoch + 1, true
			}
		}
	}
	return epochs, false
}

func (c *SGDClassifier) checkFinite(op string) error {
	for k, row := range c.coef {
		for _, v := range row {
			if err := errors.CheckScalar(op, v, c.nIter); err != nil {
				return errors.Wrapf(err, "head %q", c.headName(k))
			}
		}
		if err := errors.CheckScalar(op, c.intercept[k], c.nIter); err != nil {
			return err
		}
	}
	return nil
}

// logLoss は log(1 + exp(-p*y)) を数値的に安定に計算する
func logLoss(p, y float64) float64 {
	z := p * y
	switch {
	case z > 18:
		return math.Exp(-z)
	case z < -18:
		return -z
	default:
		return math.Log1p(math.Exp(-z))
	}
}

// logDLoss は logLoss の p に関する微分
func logDLoss(p, y float64) float64 {
	z := p * y
	switch {
	case z > 18:
		return -y * math.Exp(-z)
	case z < -18:
		return -y
	default:
		return -y / (math.Exp(z) + 1)
	}
}

// DecisionFunction は各ヘッドの決定値 (cells × heads) を返す。2クラスでは1列。
func (c *SGDClassifier) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	coef, intercept, err := c.params("DecisionFunction", X)
	if err != nil {
		return nil, err
	}
	return DecisionScores(X, coef, intercept), nil
}

// PredictProba は各クラスの確率 (cells × classes) を返す
func (c *SGDClassifier) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	scores, err := c.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	return ProbaFromScores(scores), nil
}

// Predict は各セルの最尤クラスを返す。同点は小さいクラス番号が優先される。
func (c *SGDClassifier) Predict(X mat.Matrix) ([]string, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	classes := c.Classes()
	idx := ArgMaxRows(proba)
	labels := make([]string, len(idx))
	for i, k := range idx {
		labels[i] = classes[k]
	}
	return labels, nil
}

// Score は予測ラベルの正解率を返す
func (c *SGDClassifier) Score(X mat.Matrix, y []string) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(y) {
		return 0, errors.NewLengthMismatchError("SGDClassifier.Score", "predictions", len(pred), "labels", len(y))
	}
	correct := 0
	for i := range pred {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y)), nil
}

func (c *SGDClassifier) params(method string, X mat.Matrix) (*mat.Dense, []float64, error) {
	if err := c.state.RequireFitted("SGDClassifier", method); err != nil {
		return nil, nil, err
	}
	_, nFeatures := X.Dims()
	if err := c.state.RequireFeatures("SGDClassifier."+method, nFeatures); err != nil {
		return nil, nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	coef := mat.NewDense(len(c.coef), nFeatures, nil)
	for k, row := range c.coef {
		coef.SetRow(k, row)
	}
	return coef, append([]float64(nil), c.intercept...), nil
}

// Classes は学習時に見たクラスをソート順で返す
func (c *SGDClassifier) Classes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.classes...)
}

// Coef は重み行列 (heads × features) のコピーを返す
func (c *SGDClassifier) Coef() *mat.Dense {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.coef) == 0 {
		return nil
	}
	coef := mat.NewDense(len(c.coef), len(c.coef[0]), nil)
	for k, row := range c.coef {
		coef.SetRow(k, row)
	}
	return coef
}

// Intercept は切片のコピーを返す
func (c *SGDClassifier) Intercept() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.intercept...)
}

// NIter は実行されたエポック数を返す（PartialFit では呼び出し回数）
func (c *SGDClassifier) NIter() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nIter
}

// IsFitted はモデルが学習済みかどうかを返す
func (c *SGDClassifier) IsFitted() bool {
	return c.state.IsFitted()
}

// GetParams はハイパーパラメータを返す
func (c *SGDClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"loss":             "log_loss",
		"penalty":          "l2",
		"learning_rate":    "optimal",
		"alpha":            c.alpha,
		"max_iter":         c.maxIter,
		"tol":              c.tol,
		"n_iter_no_change": c.nIterNoChange,
		"shuffle":          c.shuffle,
		"fit_intercept":    c.fitIntercept,
		"n_jobs":           c.nJobs,
		"random_state":     c.randomState,
	}
}

// ExportWeights は学習済みの重みを LinearWeights として返す
func (c *SGDClassifier) ExportWeights() (*model.LinearWeights, error) {
	if err := c.state.RequireFitted("SGDClassifier", "ExportWeights"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	w := &model.LinearWeights{
		ModelType:       "SGDClassifier",
		Version:         "1.0.0",
		Classes:         append([]string(nil), c.classes...),
		Coef:            make([][]float64, len(c.coef)),
		Intercept:       append([]float64(nil), c.intercept...),
		Hyperparameters: c.GetParams(),
		IsFitted:        true,
	}
	for k, row := range c.coef {
		w.Coef[k] = append([]float64(nil), row...)
	}
	return w, nil
}

// ImportWeights は LinearWeights から学習済み状態を復元する
func (c *SGDClassifier) ImportWeights(w *model.LinearWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if !w.IsFitted {
		return errors.NewInvalidModelError("is_fitted", "cannot import an unfitted model")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	clone := w.Clone()
	c.init(clone.Classes, clone.NFeatures())
	c.coef = clone.Coef
	c.intercept = clone.Intercept
	c.state.SetDimensions(clone.NFeatures(), 0)
	c.state.SetFitted()
	return nil
}

// DecisionScores は S = X·Wᵗ + b を計算する
func DecisionScores(X mat.Matrix, coef mat.Matrix, intercept []float64) *mat.Dense {
	var scores mat.Dense
	scores.Mul(X, coef.T())
	r, _ := scores.Dims()
	for i := 0; i < r; i++ {
		floats.Add(scores.RawRowView(i), intercept)
	}
	return &scores
}

// ProbaFromScores は決定値を確率に変換する。
// 1列（2クラス）ではシグモイドで [1-p, p] を、多列では行ごとのソフトマックスを返す。
func ProbaFromScores(scores *mat.Dense) *mat.Dense {
	r, k := scores.Dims()
	if k == 1 {
		proba := mat.NewDense(r, 2, nil)
		for i := 0; i < r; i++ {
			p := errors.Sigmoid(scores.At(i, 0))
			proba.Set(i, 0, 1-p)
			proba.Set(i, 1, p)
		}
		return proba
	}

	proba := mat.NewDense(r, k, nil)
	for i := 0; i < r; i++ {
		src := scores.RawRowView(i)
		dst := proba.RawRowView(i)
		lse := floats.LogSumExp(src)
		for j, s := range src {
			dst[j] = math.Exp(s - lse)
		}
	}
	return proba
}

// ArgMaxRows は各行の最大値の列番号を返す。同点は最小の列番号。
func ArgMaxRows(m *mat.Dense) []int {
	r, _ := m.Dims()
	idx := make([]int, r)
	for i := 0; i < r; i++ {
		idx[i] = floats.MaxIdx(m.RawRowView(i))
	}
	return idx
}

func checkXy(op string, X mat.Matrix, y []string) ([][]float64, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	if r != len(y) {
		return nil, errors.NewLengthMismatchError(op, "samples", r, "labels", len(y))
	}
	dense, ok := X.(*mat.Dense)
	if !ok {
		dense = mat.DenseCopyOf(X)
	}
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = dense.RawRowView(i)
	}
	return rows, nil
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
