package exchange

import (
	"testing"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/parallel"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// foreignF32 builds a resource over a borrowed float32 buffer, the way a
// producing runtime would hand one in.
func foreignF32(t *testing.T, place device.Placement, shape tensor.Shape, vals []float32) *Resource {
	t.Helper()
	var ptr unsafe.Pointer
	if len(vals) > 0 {
		ptr = unsafe.Pointer(&vals[0])
	}
	c, err := WrapBuffer(ptr, place, tensor.Float32, shape, nil)
	if err != nil {
		t.Fatalf("WrapBuffer: %v", err)
	}
	res, err := c.Consume()
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	return res
}

func hostPlace() device.Placement {
	return device.Placement{Kind: device.KindHost}
}

func TestCopyToBatchHostEmpty(t *testing.T) {
	dst, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{})
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()
	if err := CopyToBatch(dst, nil, CopyOptions{}); err != nil {
		t.Fatalf("CopyToBatch on empty batch: %v", err)
	}
}

func TestCopyToBatchHostSingle(t *testing.T) {
	vals := []float32{1, 2, 3, 4, 5, 6}
	src := foreignF32(t, hostPlace(), tensor.Shape{2, 3}, vals)

	dst, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()

	if err := CopyToBatch(dst, []*Resource{src}, CopyOptions{}); err != nil {
		t.Fatalf("CopyToBatch: %v", err)
	}
	got := tensor.SampleData[float32](dst, 0)
	for i, v := range vals {
		if got[i] != v {
			t.Errorf("element %d = %v, want %v", i, got[i], v)
		}
	}
	if src.Released() {
		t.Error("copy released a borrowed source")
	}
	src.Release()
}

func TestCopyToBatchHostMany(t *testing.T) {
	// A thousand samples of uneven sizes, including empty ones, so the
	// pool's weighted fan-out and the barrier are both exercised.
	const n = 1000
	shapes := make([]tensor.Shape, n)
	sources := make([][]float32, n)
	srcs := make([]*Resource, n)
	for i := 0; i < n; i++ {
		k := (i * 37) % 193
		if i%101 == 0 {
			k = 0 // sprinkle in empty samples
		}
		shapes[i] = tensor.Shape{k}
		vals := make([]float32, k)
		for j := range vals {
			vals[j] = float32(i)*1e4 + float32(j)
		}
		sources[i] = vals
		srcs[i] = foreignF32(t, hostPlace(), shapes[i], vals)
	}

	for _, pool := range []*parallel.Pool{
		nil,
		parallel.NewPool(parallel.Config{Enabled: true, NumWorkers: 4}),
	} {
		dst, err := tensor.NewBatch(device.Host(), tensor.Float32, shapes)
		if err != nil {
			t.Fatal(err)
		}
		if err := CopyToBatch(dst, srcs, CopyOptions{Pool: pool}); err != nil {
			t.Fatalf("CopyToBatch(pool=%v): %v", pool != nil, err)
		}
		for i := 0; i < n; i++ {
			got := tensor.SampleData[float32](dst, i)
			if len(got) != len(sources[i]) {
				t.Fatalf("sample %d: %d elements, want %d", i, len(got), len(sources[i]))
			}
			for j, v := range sources[i] {
				if got[j] != v {
					t.Fatalf("pool=%v sample %d element %d = %v, want %v",
						pool != nil, i, j, got[j], v)
				}
			}
		}
		dst.Release()
	}
	for _, src := range srcs {
		src.Release()
	}
}

func TestCopyToBatchHostStrided(t *testing.T) {
	// Row-pitched source: rows of 3 elements stored 4 elements apart.
	raw := []float32{
		10, 11, 12, -1,
		20, 21, 22, -1,
	}
	c, err := FromArray(&Array{
		Data:    Bytes(raw),
		TypeStr: "<f4",
		Shape:   []int64{2, 3},
		Strides: []int64{16, 4}, // byte strides
	})
	if err != nil {
		t.Fatal(err)
	}
	src, err := c.Consume()
	if err != nil {
		t.Fatal(err)
	}
	defer src.Release()

	dst, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()

	if err := CopyToBatch(dst, []*Resource{src}, CopyOptions{}); err != nil {
		t.Fatalf("CopyToBatch: %v", err)
	}
	want := []float32{10, 11, 12, 20, 21, 22}
	got := tensor.SampleData[float32](dst, 0)
	for i, v := range want {
		if got[i] != v {
			t.Errorf("element %d = %v, want %v", i, got[i], v)
		}
	}
}

func TestCopyToBatchHostBroadcast(t *testing.T) {
	// Zero-stride source: one stored element fanned out over the shape.
	raw := []float32{42}
	c, err := FromArray(&Array{
		Data:    Bytes(raw),
		TypeStr: "<f4",
		Shape:   []int64{4},
		Strides: []int64{0},
	})
	if err != nil {
		t.Fatal(err)
	}
	src, err := c.Consume()
	if err != nil {
		t.Fatal(err)
	}
	defer src.Release()

	dst, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{4}})
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()

	if err := CopyToBatch(dst, []*Resource{src}, CopyOptions{}); err != nil {
		t.Fatalf("CopyToBatch: %v", err)
	}
	for i, v := range tensor.SampleData[float32](dst, 0) {
		if v != 42 {
			t.Errorf("element %d = %v, want 42", i, v)
		}
	}
}

func TestCopyToBatchMismatchLeavesDestinationUntouched(t *testing.T) {
	newDst := func() *tensor.Batch {
		dst, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{2, 2}, {2, 2}})
		if err != nil {
			t.Fatal(err)
		}
		sentinel := make([]byte, 16)
		for i := range sentinel {
			sentinel[i] = 0xAB
		}
		for s := 0; s < dst.Samples(); s++ {
			if err := dst.WriteSample(s, sentinel); err != nil {
				t.Fatal(err)
			}
		}
		return dst
	}
	checkUntouched := func(t *testing.T, dst *tensor.Batch) {
		t.Helper()
		for s := 0; s < dst.Samples(); s++ {
			for i, b := range dst.SampleSlice(s) {
				if b != 0xAB {
					t.Fatalf("sample %d byte %d mutated to %#x", s, i, b)
				}
			}
		}
	}

	good := func() *Resource {
		return foreignF32(t, hostPlace(), tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	}

	t.Run("sample count", func(t *testing.T) {
		dst := newDst()
		defer dst.Release()
		err := CopyToBatch(dst, []*Resource{good()}, CopyOptions{})
		if !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("err = %v, want ErrShapeMismatch", err)
		}
		checkUntouched(t, dst)
	})

	t.Run("shape", func(t *testing.T) {
		dst := newDst()
		defer dst.Release()
		bad := foreignF32(t, hostPlace(), tensor.Shape{2, 3}, make([]float32, 6))
		err := CopyToBatch(dst, []*Resource{good(), bad}, CopyOptions{})
		if !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("err = %v, want ErrShapeMismatch", err)
		}
		checkUntouched(t, dst)
	})

	t.Run("element type", func(t *testing.T) {
		dst := newDst()
		defer dst.Release()
		ints := []int32{1, 2, 3, 4}
		c, err := WrapBuffer(unsafe.Pointer(&ints[0]), hostPlace(), tensor.Int32, tensor.Shape{2, 2}, nil)
		if err != nil {
			t.Fatal(err)
		}
		bad, err := c.Consume()
		if err != nil {
			t.Fatal(err)
		}
		err = CopyToBatch(dst, []*Resource{good(), bad}, CopyOptions{})
		if !errors.Is(err, ErrTypeMismatch) {
			t.Fatalf("err = %v, want ErrTypeMismatch", err)
		}
		checkUntouched(t, dst)
	})
}

func TestCopyToBatchDeviceOrdering(t *testing.T) {
	acc := device.NewAccel(0)
	defer acc.Close()
	stream := acc.NewStream()

	const n = 8
	shapes := make([]tensor.Shape, n)
	sources := make([][]float32, n)
	srcs := make([]*Resource, n)
	for i := 0; i < n; i++ {
		shapes[i] = tensor.Shape{64}
		vals := make([]float32, 64)
		for j := range vals {
			vals[j] = float32(i*100 + j)
		}
		sources[i] = vals
		srcs[i] = foreignF32(t, hostPlace(), shapes[i], vals)
	}

	dst, err := tensor.NewBatch(acc, tensor.Float32, shapes)
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()

	// Hold the stream so the enqueued copy cannot run yet; the call must
	// still return, and the destination must still be untouched.
	gate := make(chan struct{})
	stream.Enqueue(func() { <-gate })

	if err := CopyToBatch(dst, srcs, CopyOptions{Stream: stream}); err != nil {
		t.Fatalf("CopyToBatch: %v", err)
	}
	for _, b := range dst.SampleSlice(0) {
		if b != 0 {
			t.Fatal("destination mutated before the stream ran the copy")
		}
	}

	// Work ordered later on the same stream observes the copied data.
	var seen [n]float32
	stream.Enqueue(func() {
		for i := 0; i < n; i++ {
			seen[i] = tensor.SampleData[float32](dst, i)[0]
		}
	})
	close(gate)
	stream.Synchronize()

	for i := 0; i < n; i++ {
		if want := sources[i][0]; seen[i] != want {
			t.Errorf("stream-ordered read of sample %d = %v, want %v", i, seen[i], want)
		}
		got := tensor.SampleData[float32](dst, i)
		for j, v := range sources[i] {
			if got[j] != v {
				t.Fatalf("sample %d element %d = %v, want %v", i, j, got[j], v)
			}
		}
	}
	for _, src := range srcs {
		src.Release()
	}
}

func TestCopyToBatchDevicePerSample(t *testing.T) {
	acc := device.NewAccel(0)
	defer acc.Close()
	stream := acc.NewStream()

	// One strided source forces the per-sample enqueue path.
	raw := []float32{1, 2, -9, 3, 4, -9}
	c, err := FromArray(&Array{
		Data:    Bytes(raw),
		TypeStr: "<f4",
		Shape:   []int64{2, 2},
		Strides: []int64{12, 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	strided, err := c.Consume()
	if err != nil {
		t.Fatal(err)
	}
	plain := foreignF32(t, hostPlace(), tensor.Shape{2, 2}, []float32{5, 6, 7, 8})

	dst, err := tensor.NewBatch(acc, tensor.Float32, []tensor.Shape{{2, 2}, {2, 2}})
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()

	if err := CopyToBatch(dst, []*Resource{strided, plain}, CopyOptions{Stream: stream}); err != nil {
		t.Fatalf("CopyToBatch: %v", err)
	}
	stream.Synchronize()

	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for s := range want {
		got := tensor.SampleData[float32](dst, s)
		for j, v := range want[s] {
			if got[j] != v {
				t.Errorf("sample %d element %d = %v, want %v", s, j, got[j], v)
			}
		}
	}
	strided.Release()
	plain.Release()
}

func TestCopyToBatchDeviceRequiresStream(t *testing.T) {
	prev := CurrentStream()
	SetCurrentStream(nil)
	defer SetCurrentStream(prev)

	acc := device.NewAccel(0)
	defer acc.Close()

	dst, err := tensor.NewBatch(acc, tensor.Float32, []tensor.Shape{{2}})
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Release()
	src := foreignF32(t, hostPlace(), tensor.Shape{2}, []float32{1, 2})
	defer src.Release()

	if err := CopyToBatch(dst, []*Resource{src}, CopyOptions{}); err == nil {
		t.Fatal("CopyToBatch without a stream succeeded, want error")
	}

	// The process-wide current stream serves as the fallback.
	stream := acc.NewStream()
	SetCurrentStream(stream)
	defer SetCurrentStream(nil)
	if err := CopyToBatch(dst, []*Resource{src}, CopyOptions{}); err != nil {
		t.Fatalf("CopyToBatch with current stream: %v", err)
	}
	stream.Synchronize()
	got := tensor.SampleData[float32](dst, 0)
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("copied sample = %v, want [1 2]", got)
	}
}

func BenchmarkCopyToBatchHost(b *testing.B) {
	const n = 64
	shapes := make([]tensor.Shape, n)
	srcs := make([]*Resource, n)
	for i := 0; i < n; i++ {
		shapes[i] = tensor.Shape{1024}
		vals := make([]float32, 1024)
		c, _ := WrapBuffer(unsafe.Pointer(&vals[0]), device.Placement{Kind: device.KindHost}, tensor.Float32, shapes[i], nil)
		srcs[i], _ = c.Consume()
	}
	dst, _ := tensor.NewBatch(device.Host(), tensor.Float32, shapes)
	pool := parallel.NewPool(parallel.Config{Enabled: true, NumWorkers: 4})

	b.SetBytes(int64(n * 1024 * 4))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := CopyToBatch(dst, srcs, CopyOptions{Pool: pool}); err != nil {
			b.Fatal(err)
		}
	}
}
