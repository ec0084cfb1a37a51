package optim

import "math"

// SGD is a gradient descent optimizer with optional elastic-net style
// regularisation. L2 enters the gradient, L1 is applied as a proximal
// soft-threshold after the step so weights can reach exactly zero.
type SGD struct {
	LearningRate float64
	L1           float64
	L2           float64
}

// Option configures an SGD.
type Option func(*SGD)

func WithL1(lambda float64) Option { return func(o *SGD) { o.L1 = lambda } }
func WithL2(lambda float64) Option { return func(o *SGD) { o.L2 = lambda } }

func NewSGD(lr float64, opts ...Option) *SGD {
	o := &SGD{LearningRate: lr}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Step updates weights in place and returns the largest absolute change.
func (o *SGD) Step(weights, grads []float64) float64 {
	maxDelta := 0.0
	shrink := o.LearningRate * o.L1
	for i := range weights {
		old := weights[i]
		w := old - o.LearningRate*(grads[i]+o.L2*old)
		if shrink > 0 {
			w = softThreshold(w, shrink)
		}
		weights[i] = w
		if d := math.Abs(w - old); d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}

func softThreshold(w, t float64) float64 {
	switch {
	case w > t:
		return w - t
	case w < -t:
		return w + t
	default:
		return 0
	}
}
