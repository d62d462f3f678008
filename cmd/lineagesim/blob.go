package main

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/phaniarnab/lineagecache/internal/cache"
	"github.com/phaniarnab/lineagecache/internal/workload"
)

// localDiskCost is a constant-bandwidth FSCostEstimator: a flat MB/s
// figure standing in for whatever real device the process runs on,
// which is enough to exercise the spill/drop decision in eviction.go
// without depending on the actual disk underneath the simulation.
type localDiskCost struct{}

const localDiskMBPerSec = 500.0

func (localDiskCost) FSWriteTimeMS(rows, cols int64, sparsity float64) float64 {
	return fsTimeMS(rows, cols, sparsity)
}

func (localDiskCost) FSReadTimeMS(rows, cols int64, sparsity float64) float64 {
	return fsTimeMS(rows, cols, sparsity)
}

func fsTimeMS(rows, cols int64, sparsity float64) float64 {
	bytes := float64(rows*cols*8) * max(sparsity, 0.05)
	mb := bytes / (1 << 20)
	return mb / localDiskMBPerSec * 1000
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// rawBlobCodec serializes workload.Block values, the only MatrixValue the
// simulation driver ever produces, via gob — the simplest round-trip that
// doesn't need the real matrix-block wire format the runtime would use.
type rawBlobCodec struct{}

func (rawBlobCodec) EncodeBlob(v cache.MatrixValue) ([]byte, error) {
	b, ok := v.(workload.Block)
	if !ok {
		return nil, fmt.Errorf("rawBlobCodec: unsupported matrix value %T", v)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (rawBlobCodec) DecodeBlob(data []byte) (cache.MatrixValue, error) {
	var b workload.Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, err
	}
	return b, nil
}
