package cache

import "fmt"

// FSCostEstimator is the external bandwidth-model collaborator that
// knows how long a write/read of a given shape takes on the local spill
// filesystem.
type FSCostEstimator interface {
	FSWriteTimeMS(rows, cols int64, sparsity float64) float64
	FSReadTimeMS(rows, cols int64, sparsity float64) float64
}

// OpRequest describes one recompute-flops query: an opcode category plus
// the dimensions (and, where relevant, sparse-format flags) of its
// operands.
type OpRequest struct {
	Opcode              string
	Operands            []Dims
	OperandSparseFormat []bool
	// Left selects, for tsmm, whether the transpose is on the left
	// (t(X) %*% X) or the right (X %*% t(X)); it swaps which dimension
	// plays the squared role in the flop count.
	Left bool
}

func (r OpRequest) sparseFormat(i int) bool {
	if i < len(r.OperandSparseFormat) {
		return r.OperandSparseFormat[i]
	}
	return false
}

// CostModel estimates recompute time (flops/bandwidth) and spill time
// (disk I/O) for a cache entry, given its dimensions and sparsity.
type CostModel struct {
	fs FSCostEstimator
}

func NewCostModel(fs FSCostEstimator) *CostModel {
	return &CostModel{fs: fs}
}

// DiskSizeMB converts an on-disk size estimate (bytes) to mebibytes.
func DiskSizeMB(onDiskBytes int64) float64 {
	const mib = 1 << 20
	return float64(onDiskBytes) / mib
}

// FSWriteTimeMS is the estimated time to write d's shape to the spill store.
func (c *CostModel) FSWriteTimeMS(d Dims) float64 {
	return c.fs.FSWriteTimeMS(d.Rows, d.Cols, d.Sparsity())
}

// FSReadTimeMS is the estimated time to read d's shape back from the spill store.
func (c *CostModel) FSReadTimeMS(d Dims) float64 {
	return c.fs.FSReadTimeMS(d.Rows, d.Cols, d.Sparsity())
}

// SpillTimeMS is fs_write_time + fs_read_time for the given shape,
// evaluated by the external bandwidth-model estimator.
func (c *CostModel) SpillTimeMS(d Dims) float64 {
	return c.FSWriteTimeMS(d) + c.FSReadTimeMS(d)
}

// RecomputeGFlops dispatches on instruction category, returning a
// normalized GFLOPs estimate, or ErrUnsupportedOp for a category the cost
// model cannot score.
func (c *CostModel) RecomputeGFlops(req OpRequest) (float64, error) {
	const giga = 1 << 30

	switch {
	case req.Opcode == "tsmm":
		if len(req.Operands) < 1 {
			return 0, fmt.Errorf("%w: tsmm requires one operand", ErrUnsupportedOp)
		}
		flops := tsmmFlops(req.Operands[0], req.Left, req.sparseFormat(0))
		return flops / giga, nil

	case req.Opcode == "ba+*":
		if len(req.Operands) < 2 {
			return 0, fmt.Errorf("%w: ba+* requires two operands", ErrUnsupportedOp)
		}
		flops := baFlops(req.Operands[0], req.Operands[1], req.sparseFormat(0), req.sparseFormat(1))
		return flops / giga, nil

	case req.Opcode == "*" || req.Opcode == "/" || req.Opcode == "+":
		if len(req.Operands) < 1 {
			return 0, fmt.Errorf("%w: %s requires at least one operand", ErrUnsupportedOp, req.Opcode)
		}
		// Elementwise ops: one flop per cell of the (larger) operand.
		var cells int64
		for _, d := range req.Operands {
			if n := d.Rows * d.Cols; n > cells {
				cells = n
			}
		}
		return float64(cells) / giga, nil

	default:
		return 0, fmt.Errorf("%w: opcode %q", ErrUnsupportedOp, req.Opcode)
	}
}

// RecomputeGFlopsOrZero downgrades an unsupported-opcode cost error to
// zero: an opcode the model can't cost is treated as free rather than
// failing the caller.
func (c *CostModel) RecomputeGFlopsOrZero(req OpRequest) float64 {
	g, err := c.RecomputeGFlops(req)
	if err != nil {
		return 0
	}
	return g
}

// tsmmFlops is the tsmm cost formula: r*c^2*s/2 dense, r*c^2*s^2/2
// sparse, with left/right transposing which dimension is squared.
func tsmmFlops(d Dims, left bool, sparse bool) float64 {
	r, c := float64(d.Rows), float64(d.Cols)
	if !left {
		r, c = c, r
	}
	s := d.Sparsity()
	if sparse {
		return r * c * c * s * s / 2
	}
	return r * c * c * s / 2
}

// baFlops is the ba+* cost formula:
// 2*r1*c1*c2*s1*s2/2, where si is the operand's own
// sparsity when stored in sparse format and 1 (dense) otherwise — this
// realizes all four sparse/dense operand combinations.
func baFlops(a, b Dims, aSparse, bSparse bool) float64 {
	r1, c1 := float64(a.Rows), float64(a.Cols)
	c2 := float64(b.Cols)

	s1 := 1.0
	if aSparse {
		s1 = a.Sparsity()
	}
	s2 := 1.0
	if bSparse {
		s2 = b.Sparsity()
	}
	return 2 * r1 * c1 * c2 * s1 * s2 / 2
}
