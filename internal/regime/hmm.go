package regime

import (
	"errors"
	"math"
	"math/rand"
)

// gaussianHMM is a hidden Markov model with full-covariance Gaussian
// emissions, trained by expectation-maximization in log space. The model is
// rebuilt from scratch for every classification; nothing is retained
// between runs.
type gaussianHMM struct {
	states int
	dims   int

	logStart [][]float64 // 1 x K, kept as slice-of-one for symmetry
	logTrans [][]float64 // K x K
	means    [][]float64 // K x D
	covs     [][][]float64
	chols    []*cholesky
}

const (
	covJitter  = 1e-6
	minLogProb = -1e10
)

var errDegenerate = errors.New("degenerate model")

// fitHMM trains a model on obs (T x D) with a fixed seed and iteration cap.
// Training stops early once the log-likelihood improvement falls below tol.
func fitHMM(obs [][]float64, states int, seed int64, maxIter int, tol float64) (*gaussianHMM, error) {
	t := len(obs)
	if t < states*2 {
		return nil, errDegenerate
	}
	d := len(obs[0])

	h := &gaussianHMM{states: states, dims: d}
	h.initialize(obs, rand.New(rand.NewSource(seed)))
	if err := h.refreshCholeskys(); err != nil {
		return nil, err
	}

	prevLL := math.Inf(-1)
	for iter := 0; iter < maxIter; iter++ {
		ll, err := h.emStep(obs)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(ll) || math.IsInf(ll, 1) {
			return nil, errDegenerate
		}
		if iter > 0 && math.Abs(ll-prevLL) < tol {
			break
		}
		prevLL = ll
	}
	return h, nil
}

// initialize seeds the parameters: uniform start and transition
// distributions, means drawn from distinct observations, and the global
// covariance for every state.
func (h *gaussianHMM) initialize(obs [][]float64, rng *rand.Rand) {
	k, d := h.states, h.dims

	h.logStart = [][]float64{make([]float64, k)}
	h.logTrans = make([][]float64, k)
	for i := 0; i < k; i++ {
		h.logStart[0][i] = -math.Log(float64(k))
		h.logTrans[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			h.logTrans[i][j] = -math.Log(float64(k))
		}
	}

	perm := rng.Perm(len(obs))
	h.means = make([][]float64, k)
	for i := 0; i < k; i++ {
		h.means[i] = make([]float64, d)
		copy(h.means[i], obs[perm[i]])
	}

	global := covariance(obs)
	h.covs = make([][][]float64, k)
	for i := 0; i < k; i++ {
		h.covs[i] = cloneMatrix(global)
	}
}

// emStep runs one expectation-maximization iteration and returns the data
// log-likelihood under the parameters used for the E step.
func (h *gaussianHMM) emStep(obs [][]float64) (float64, error) {
	t, k := len(obs), h.states

	logB := make([][]float64, t)
	for i := 0; i < t; i++ {
		logB[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			logB[i][j] = h.logDensity(j, obs[i])
		}
	}

	logAlpha, ll := h.forward(logB)
	if math.IsNaN(ll) {
		return ll, errDegenerate
	}
	logBeta := h.backward(logB)

	// State posteriors.
	gamma := make([][]float64, t)
	for i := 0; i < t; i++ {
		gamma[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			gamma[i][j] = math.Exp(logAlpha[i][j] + logBeta[i][j] - ll)
		}
	}

	// Transition posteriors, summed over time.
	xiSum := make([][]float64, k)
	for i := 0; i < k; i++ {
		xiSum[i] = make([]float64, k)
	}
	for step := 0; step < t-1; step++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				v := logAlpha[step][i] + h.logTrans[i][j] + logB[step+1][j] + logBeta[step+1][j] - ll
				xiSum[i][j] += math.Exp(v)
			}
		}
	}

	// M step.
	for i := 0; i < k; i++ {
		h.logStart[0][i] = safeLog(gamma[0][i])

		var rowSum float64
		for j := 0; j < k; j++ {
			rowSum += xiSum[i][j]
		}
		for j := 0; j < k; j++ {
			if rowSum > 0 {
				h.logTrans[i][j] = safeLog(xiSum[i][j] / rowSum)
			} else {
				h.logTrans[i][j] = -math.Log(float64(k))
			}
		}

		var weight float64
		for step := 0; step < t; step++ {
			weight += gamma[step][i]
		}
		if weight <= 0 {
			return ll, errDegenerate
		}

		mean := make([]float64, h.dims)
		for step := 0; step < t; step++ {
			for d := 0; d < h.dims; d++ {
				mean[d] += gamma[step][i] * obs[step][d]
			}
		}
		for d := 0; d < h.dims; d++ {
			mean[d] /= weight
		}
		h.means[i] = mean

		cov := zeroMatrix(h.dims)
		for step := 0; step < t; step++ {
			for a := 0; a < h.dims; a++ {
				da := obs[step][a] - mean[a]
				for b := 0; b < h.dims; b++ {
					cov[a][b] += gamma[step][i] * da * (obs[step][b] - mean[b])
				}
			}
		}
		for a := 0; a < h.dims; a++ {
			for b := 0; b < h.dims; b++ {
				cov[a][b] /= weight
			}
			cov[a][a] += covJitter
		}
		h.covs[i] = cov
	}

	if err := h.refreshCholeskys(); err != nil {
		return ll, err
	}
	return ll, nil
}

func (h *gaussianHMM) forward(logB [][]float64) ([][]float64, float64) {
	t, k := len(logB), h.states
	logAlpha := make([][]float64, t)
	logAlpha[0] = make([]float64, k)
	for j := 0; j < k; j++ {
		logAlpha[0][j] = h.logStart[0][j] + logB[0][j]
	}
	work := make([]float64, k)
	for step := 1; step < t; step++ {
		logAlpha[step] = make([]float64, k)
		for j := 0; j < k; j++ {
			for i := 0; i < k; i++ {
				work[i] = logAlpha[step-1][i] + h.logTrans[i][j]
			}
			logAlpha[step][j] = logSumExp(work) + logB[step][j]
		}
	}
	return logAlpha, logSumExp(logAlpha[t-1])
}

func (h *gaussianHMM) backward(logB [][]float64) [][]float64 {
	t, k := len(logB), h.states
	logBeta := make([][]float64, t)
	logBeta[t-1] = make([]float64, k)
	work := make([]float64, k)
	for step := t - 2; step >= 0; step-- {
		logBeta[step] = make([]float64, k)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				work[j] = h.logTrans[i][j] + logB[step+1][j] + logBeta[step+1][j]
			}
			logBeta[step][i] = logSumExp(work)
		}
	}
	return logBeta
}

// viterbi decodes the most likely state sequence for obs.
func (h *gaussianHMM) viterbi(obs [][]float64) []int {
	t, k := len(obs), h.states

	delta := make([][]float64, t)
	psi := make([][]int, t)
	delta[0] = make([]float64, k)
	psi[0] = make([]int, k)
	for j := 0; j < k; j++ {
		delta[0][j] = h.logStart[0][j] + h.logDensity(j, obs[0])
	}
	for step := 1; step < t; step++ {
		delta[step] = make([]float64, k)
		psi[step] = make([]int, k)
		for j := 0; j < k; j++ {
			best, bestIdx := math.Inf(-1), 0
			for i := 0; i < k; i++ {
				v := delta[step-1][i] + h.logTrans[i][j]
				if v > best {
					best, bestIdx = v, i
				}
			}
			delta[step][j] = best + h.logDensity(j, obs[step])
			psi[step][j] = bestIdx
		}
	}

	path := make([]int, t)
	best, bestIdx := math.Inf(-1), 0
	for j := 0; j < k; j++ {
		if delta[t-1][j] > best {
			best, bestIdx = delta[t-1][j], j
		}
	}
	path[t-1] = bestIdx
	for step := t - 2; step >= 0; step-- {
		path[step] = psi[step+1][path[step+1]]
	}
	return path
}

// logDensity evaluates the log multivariate normal density of x under
// state j.
func (h *gaussianHMM) logDensity(j int, x []float64) float64 {
	chol := h.chols[j]
	diff := make([]float64, h.dims)
	for d := 0; d < h.dims; d++ {
		diff[d] = x[d] - h.means[j][d]
	}
	quad := chol.quadraticForm(diff)
	ld := -0.5 * (float64(h.dims)*math.Log(2*math.Pi) + chol.logDet + quad)
	if math.IsNaN(ld) {
		return minLogProb
	}
	return math.Max(ld, minLogProb)
}

func (h *gaussianHMM) refreshCholeskys() error {
	h.chols = make([]*cholesky, h.states)
	for i := 0; i < h.states; i++ {
		c, err := newCholesky(h.covs[i])
		if err != nil {
			return err
		}
		h.chols[i] = c
	}
	return nil
}

// cholesky holds the lower-triangular factor of a positive definite matrix
// and its log determinant, used for density evaluation without explicit
// inversion.
type cholesky struct {
	l      [][]float64
	logDet float64
}

// newCholesky factors m, adding diagonal jitter up to three times before
// giving up on a non positive definite matrix.
func newCholesky(m [][]float64) (*cholesky, error) {
	n := len(m)
	jitter := 0.0
	for attempt := 0; attempt < 4; attempt++ {
		l := zeroMatrix(n)
		ok := true
		logDet := 0.0
		for i := 0; i < n && ok; i++ {
			for j := 0; j <= i; j++ {
				sum := m[i][j]
				if i == j {
					sum += jitter
				}
				for p := 0; p < j; p++ {
					sum -= l[i][p] * l[j][p]
				}
				if i == j {
					if sum <= 0 {
						ok = false
						break
					}
					l[i][j] = math.Sqrt(sum)
					logDet += 2 * math.Log(l[i][j])
				} else {
					l[i][j] = sum / l[j][j]
				}
			}
		}
		if ok {
			return &cholesky{l: l, logDet: logDet}, nil
		}
		if jitter == 0 {
			jitter = covJitter
		} else {
			jitter *= 100
		}
	}
	return nil, errDegenerate
}

// quadraticForm computes diff' Σ⁻¹ diff via two triangular solves.
func (c *cholesky) quadraticForm(diff []float64) float64 {
	n := len(diff)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := diff[i]
		for j := 0; j < i; j++ {
			sum -= c.l[i][j] * y[j]
		}
		y[i] = sum / c.l[i][i]
	}
	var quad float64
	for i := 0; i < n; i++ {
		quad += y[i] * y[i]
	}
	return quad
}

func covariance(obs [][]float64) [][]float64 {
	t, d := len(obs), len(obs[0])
	mean := make([]float64, d)
	for _, row := range obs {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(t)
	}
	cov := zeroMatrix(d)
	for _, row := range obs {
		for a := 0; a < d; a++ {
			da := row[a] - mean[a]
			for b := 0; b < d; b++ {
				cov[a][b] += da * (row[b] - mean[b])
			}
		}
	}
	for a := 0; a < d; a++ {
		for b := 0; b < d; b++ {
			cov[a][b] /= float64(t)
		}
		cov[a][a] += covJitter
	}
	return cov
}

func zeroMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = make([]float64, len(m[i]))
		copy(out[i], m[i])
	}
	return out
}

func logSumExp(values []float64) float64 {
	max := math.Inf(-1)
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, v := range values {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

func safeLog(v float64) float64 {
	if v <= 0 {
		return minLogProb
	}
	return math.Log(v)
}
