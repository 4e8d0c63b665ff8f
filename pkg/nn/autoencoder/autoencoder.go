// Package autoencoder implements a single-bottleneck dense autoencoder
// trained with Adadelta on binary cross-entropy.
//
// The network is input -> Dense(relu, compressRate*input) -> Dense(sigmoid, input),
// so inputs are expected to be scaled into [0, 1].
package autoencoder

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/aedetect/pkg/nn"
)

var (
	// ErrNotTrained is returned by Predict and Save before Fit.
	ErrNotTrained = errors.New("model not trained")
	// ErrDimensionMismatch is returned when input width does not match the model.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyData is returned when fitting on zero rows.
	ErrEmptyData = errors.New("empty training data")
)

const clipEpsilon = 1e-7

// Autoencoder is a two-layer dense autoencoder.
type Autoencoder struct {
	// Configuration
	inputDim     int
	hiddenDim    int
	compressRate float64
	batchSize    int
	epochs       int
	verbose      int
	rho          float64
	epsilon      float64
	learningRate float64
	rng          *rand.Rand
	logger       *zap.Logger

	// Trained model
	w1, w2  *mat.Dense
	b1, b2  []float64
	trained bool
}

// Option configures an Autoencoder.
type Option func(*Autoencoder)

// WithCompressRate sets the bottleneck width as a fraction of the input width.
func WithCompressRate(r float64) Option {
	return func(a *Autoencoder) {
		a.compressRate = r
	}
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(a *Autoencoder) {
		a.batchSize = n
	}
}

// WithEpochs sets the number of passes over the training data.
func WithEpochs(n int) Option {
	return func(a *Autoencoder) {
		a.epochs = n
	}
}

// WithVerbose logs the loss after every epoch when v > 0.
func WithVerbose(v int) Option {
	return func(a *Autoencoder) {
		a.verbose = v
	}
}

// WithLearningRate sets the Adadelta learning rate.
func WithLearningRate(lr float64) Option {
	return func(a *Autoencoder) {
		a.learningRate = lr
	}
}

// WithSeed sets the random seed for weight initialization and shuffling.
func WithSeed(seed int64) Option {
	return func(a *Autoencoder) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the logger used for training progress.
func WithLogger(l *zap.Logger) Option {
	return func(a *Autoencoder) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an untrained autoencoder for rows of width inputDim.
func New(inputDim int, opts ...Option) (*Autoencoder, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: input dimension must be > 0, got %d", ErrDimensionMismatch, inputDim)
	}

	a := &Autoencoder{
		inputDim:     inputDim,
		compressRate: 0.8,
		batchSize:    100,
		epochs:       200,
		rho:          0.95,
		epsilon:      1e-7,
		learningRate: 1.0,
		rng:          rand.New(rand.NewSource(42)),
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.batchSize <= 0 || a.epochs <= 0 {
		return nil, fmt.Errorf("batch size and epochs must be > 0, got %d and %d", a.batchSize, a.epochs)
	}

	a.hiddenDim = int(a.compressRate * float64(inputDim))
	if a.hiddenDim < 1 {
		a.hiddenDim = 1
	}

	return a, nil
}

// NewFactory returns an nn.Factory building autoencoders with opts.
func NewFactory(opts ...Option) nn.Factory {
	return func(inputDim int) (nn.Model, error) {
		return New(inputDim, opts...)
	}
}

// InputDim returns the row width the model accepts.
func (a *Autoencoder) InputDim() int { return a.inputDim }

// HiddenDim returns the bottleneck width.
func (a *Autoencoder) HiddenDim() int { return a.hiddenDim }

// Fit trains the autoencoder to map x onto y.
func (a *Autoencoder) Fit(x, y *mat.Dense) error {
	if err := a.checkInput(x); err != nil {
		return err
	}
	xr, _ := x.Dims()
	yr, yc := y.Dims()
	if yr != xr || yc != a.inputDim {
		return fmt.Errorf("%w: target shape (%d, %d) does not match input", ErrDimensionMismatch, yr, yc)
	}

	a.initWeights()
	params := []*param{
		newParam(a.w1.RawMatrix().Data),
		newParam(a.b1),
		newParam(a.w2.RawMatrix().Data),
		newParam(a.b2),
	}

	for epoch := 0; epoch < a.epochs; epoch++ {
		order := a.rng.Perm(xr)
		var epochLoss float64

		for start := 0; start < xr; start += a.batchSize {
			end := start + a.batchSize
			if end > xr {
				end = xr
			}
			xb := gatherRows(x, order[start:end])
			yb := gatherRows(y, order[start:end])

			loss, grads := a.backward(xb, yb)
			for i, p := range params {
				p.step(grads[i], a.rho, a.epsilon, a.learningRate)
			}
			epochLoss += loss * float64(end-start)
		}

		if a.verbose > 0 {
			a.logger.Info("autoencoder epoch",
				zap.Int("epoch", epoch+1),
				zap.Int("epochs", a.epochs),
				zap.Float64("loss", epochLoss/float64(xr)),
			)
		}
	}

	a.trained = true
	return nil
}

// Predict returns the reconstruction of x.
func (a *Autoencoder) Predict(x *mat.Dense) (*mat.Dense, error) {
	if !a.trained {
		return nil, ErrNotTrained
	}
	if err := a.checkInput(x); err != nil {
		return nil, err
	}

	_, _, out := a.forward(x)
	return out, nil
}

// Loss returns the mean binary cross-entropy of reconstructing x.
func (a *Autoencoder) Loss(x *mat.Dense) (float64, error) {
	out, err := a.Predict(x)
	if err != nil {
		return 0, err
	}
	return binaryCrossEntropy(out, x), nil
}

func (a *Autoencoder) checkInput(x *mat.Dense) error {
	r, c := x.Dims()
	if r == 0 {
		return ErrEmptyData
	}
	if c != a.inputDim {
		return fmt.Errorf("%w: expected %d columns, got %d", ErrDimensionMismatch, a.inputDim, c)
	}
	return nil
}

// initWeights applies Glorot-uniform initialization and zero biases.
func (a *Autoencoder) initWeights() {
	a.w1 = a.glorot(a.inputDim, a.hiddenDim)
	a.w2 = a.glorot(a.hiddenDim, a.inputDim)
	a.b1 = make([]float64, a.hiddenDim)
	a.b2 = make([]float64, a.inputDim)
}

func (a *Autoencoder) glorot(fanIn, fanOut int) *mat.Dense {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	data := make([]float64, fanIn*fanOut)
	for i := range data {
		data[i] = (a.rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(fanIn, fanOut, data)
}

// forward returns the encoder pre-activation, the encoding and the reconstruction.
func (a *Autoencoder) forward(x mat.Matrix) (z1, h, out *mat.Dense) {
	z1 = &mat.Dense{}
	z1.Mul(x, a.w1)
	z1.Apply(func(_, j int, v float64) float64 { return v + a.b1[j] }, z1)

	h = &mat.Dense{}
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z1)

	out = &mat.Dense{}
	out.Mul(h, a.w2)
	out.Apply(func(_, j int, v float64) float64 { return sigmoid(v + a.b2[j]) }, out)

	return z1, h, out
}

// backward runs one forward/backward pass and returns the batch loss and
// the gradients for w1, b1, w2 and b2, in that order.
func (a *Autoencoder) backward(x, y *mat.Dense) (float64, [][]float64) {
	z1, h, out := a.forward(x)
	loss := binaryCrossEntropy(out, y)

	r, c := out.Dims()
	norm := float64(r * c)

	// sigmoid + cross-entropy collapses to (out - y).
	dOut := &mat.Dense{}
	dOut.Sub(out, y)
	dOut.Scale(1/norm, dOut)

	dW2 := &mat.Dense{}
	dW2.Mul(h.T(), dOut)
	db2 := colSums(dOut)

	dH := &mat.Dense{}
	dH.Mul(dOut, a.w2.T())
	dH.Apply(func(i, j int, v float64) float64 {
		if z1.At(i, j) > 0 {
			return v
		}
		return 0
	}, dH)

	dW1 := &mat.Dense{}
	dW1.Mul(x.T(), dH)
	db1 := colSums(dH)

	return loss, [][]float64{
		dW1.RawMatrix().Data,
		db1,
		dW2.RawMatrix().Data,
		db2,
	}
}

// Save serializes the trained model.
func (a *Autoencoder) Save() ([]byte, error) {
	if !a.trained {
		return nil, ErrNotTrained
	}

	snap := snapshot{
		InputDim:  a.inputDim,
		HiddenDim: a.hiddenDim,
		W1:        a.w1.RawMatrix().Data,
		B1:        a.b1,
		W2:        a.w2.RawMatrix().Data,
		B2:        a.b2,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (a *Autoencoder) Load(data []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	if snap.InputDim <= 0 || snap.HiddenDim <= 0 ||
		len(snap.W1) != snap.InputDim*snap.HiddenDim ||
		len(snap.W2) != snap.InputDim*snap.HiddenDim ||
		len(snap.B1) != snap.HiddenDim || len(snap.B2) != snap.InputDim {
		return fmt.Errorf("%w: corrupt model snapshot", ErrDimensionMismatch)
	}

	a.inputDim = snap.InputDim
	a.hiddenDim = snap.HiddenDim
	a.w1 = mat.NewDense(snap.InputDim, snap.HiddenDim, snap.W1)
	a.w2 = mat.NewDense(snap.HiddenDim, snap.InputDim, snap.W2)
	a.b1 = snap.B1
	a.b2 = snap.B2
	a.trained = true

	return nil
}

type snapshot struct {
	InputDim  int
	HiddenDim int
	W1, B1    []float64
	W2, B2    []float64
}

// param holds Adadelta accumulators for one weight slice.
type param struct {
	value    []float64
	accGrad  []float64
	accDelta []float64
}

func newParam(value []float64) *param {
	return &param{
		value:    value,
		accGrad:  make([]float64, len(value)),
		accDelta: make([]float64, len(value)),
	}
}

func (p *param) step(grad []float64, rho, eps, lr float64) {
	for i, g := range grad {
		p.accGrad[i] = rho*p.accGrad[i] + (1-rho)*g*g
		delta := math.Sqrt(p.accDelta[i]+eps) / math.Sqrt(p.accGrad[i]+eps) * g
		p.accDelta[i] = rho*p.accDelta[i] + (1-rho)*delta*delta
		p.value[i] -= lr * delta
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func binaryCrossEntropy(pred, target mat.Matrix) float64 {
	r, c := pred.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p := math.Min(math.Max(pred.At(i, j), clipEpsilon), 1-clipEpsilon)
			t := target.At(i, j)
			sum -= t*math.Log(p) + (1-t)*math.Log(1-p)
		}
	}
	return sum / float64(r*c)
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sums[j] += m.At(i, j)
		}
	}
	return sums
}

func gatherRows(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}
