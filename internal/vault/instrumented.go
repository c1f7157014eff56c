package vault

import (
	"context"
	"io"
	"time"

	"webfile-go/internal/webfile"
)

// Metrics receives per-operation vault observations.
type Metrics interface {
	ObserveVaultOp(op string, area webfile.Area, elapsed time.Duration, err error)
	AddVaultBytes(direction string, n int64)
}

// InstrumentedVault reports the latency, outcome and transferred bytes of
// every call to the wrapped store.
type InstrumentedVault struct {
	inner   webfile.ContentStore
	metrics Metrics
}

func NewInstrumentedVault(inner webfile.ContentStore, m Metrics) *InstrumentedVault {
	return &InstrumentedVault{inner: inner, metrics: m}
}

func (v *InstrumentedVault) observe(op string, area webfile.Area, start time.Time, err error) {
	v.metrics.ObserveVaultOp(op, area, time.Since(start), err)
}

func (v *InstrumentedVault) Put(ctx context.Context, ref webfile.StorageRef, r io.Reader, size int64) (err error) {
	start := time.Now()
	counter := &countingReader{r: r}
	defer func() {
		v.metrics.AddVaultBytes("in", counter.n)
		v.observe("put", ref.Area, start, err)
	}()
	return v.inner.Put(ctx, ref, counter, size)
}

func (v *InstrumentedVault) Get(ctx context.Context, ref webfile.StorageRef, w io.Writer) (err error) {
	start := time.Now()
	counter := &countingWriter{w: w}
	defer func() {
		v.metrics.AddVaultBytes("out", counter.n)
		v.observe("get", ref.Area, start, err)
	}()
	return v.inner.Get(ctx, ref, counter)
}

func (v *InstrumentedVault) Exists(ctx context.Context, ref webfile.StorageRef) (ok bool, err error) {
	start := time.Now()
	defer func() { v.observe("exists", ref.Area, start, err) }()
	return v.inner.Exists(ctx, ref)
}

func (v *InstrumentedVault) Move(ctx context.Context, ref webfile.StorageRef, to webfile.Area) (err error) {
	start := time.Now()
	defer func() { v.observe("move", ref.Area, start, err) }()
	return v.inner.Move(ctx, ref, to)
}

func (v *InstrumentedVault) Copy(ctx context.Context, ref webfile.StorageRef, to webfile.Area) (err error) {
	start := time.Now()
	defer func() { v.observe("copy", ref.Area, start, err) }()
	return v.inner.Copy(ctx, ref, to)
}

func (v *InstrumentedVault) Delete(ctx context.Context, ref webfile.StorageRef) (err error) {
	start := time.Now()
	defer func() { v.observe("delete", ref.Area, start, err) }()
	return v.inner.Delete(ctx, ref)
}

func (v *InstrumentedVault) ValidateSetup(ctx context.Context) error {
	return v.inner.ValidateSetup(ctx)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

var _ webfile.ContentStore = (*InstrumentedVault)(nil)
