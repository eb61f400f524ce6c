package ops

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// gpu compiles a fresh registry, skipping when no adapter exists.
func gpu(t *testing.T) *Dispatcher {
	t.Helper()
	if !webgpu.IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	ctx, err := webgpu.NewContext()
	require.NoError(t, err)
	t.Cleanup(ctx.Release)

	reg, err := webgpu.LoadRegistry(ctx)
	require.NoError(t, err)
	t.Cleanup(reg.Release)
	return New(reg)
}

func TestClippedLinearDefaults(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{2, 2}, []float32{1, -1, 0, 2})

	y, err := d.ClippedLinear(x, DefaultClippedLinearParams(), AllocateNew)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 1}, y.AsFloat32())
}

func TestClippedLinearSlopeAndOffset(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{3}, []float32{-1, 0, 1})
	p := ClippedLinearParams{Slope: 2, Offset: 1, Min: -3, Max: 3}

	y, err := d.ClippedLinear(x, p, AllocateNew)
	require.NoError(t, err)
	// 2x+1 clamped to [-3, 3]
	assert.Equal(t, []float32{-1, 1, 3}, y.AsFloat32())
}

func TestWriteInPlaceAliasesAndMatchesAllocate(t *testing.T) {
	d := gpu(t)
	data := []float32{-2, -0.5, 0, 0.5, 2, 10}
	x1 := floats(t, tensor.Shape{6}, data)
	x2 := floats(t, tensor.Shape{6}, data)

	fresh, err := d.Gelu(x1, AllocateNew)
	require.NoError(t, err)
	inPlace, err := d.Gelu(x2, WriteInPlace)
	require.NoError(t, err)

	assert.Same(t, x2, inPlace)
	assert.Equal(t, fresh.AsFloat32(), inPlace.AsFloat32())
}

func TestGeluMatchesReference(t *testing.T) {
	d := gpu(t)
	in := []float32{-7, -2, -0.5, 0, 0.5, 2, 7}
	x := floats(t, tensor.Shape{7}, in)

	y, err := d.Gelu(x, AllocateNew)
	require.NoError(t, err)

	for i, v := range in {
		assert.InDelta(t, geluRef(float64(v)), float64(y.AsFloat32()[i]), 1e-5, "x = %f", v)
	}
}

func geluRef(x float64) float64 {
	if x >= GeluThreshold {
		return x
	}
	if x <= -GeluThreshold {
		return 0
	}
	inner := 0.7978845608028654 * (x + 0.044715*x*x*x)
	return 0.5 * x * (1 + math.Tanh(inner))
}

func TestSwishMatchesReference(t *testing.T) {
	d := gpu(t)
	in := []float32{-20, -1, 0, 1, 20}
	x := floats(t, tensor.Shape{5}, in)

	y, err := d.Swish(x, AllocateNew)
	require.NoError(t, err)

	for i, v := range in {
		want := float64(v) / (1 + math.Exp(-float64(v)))
		if float64(v) >= SwishThreshold {
			want = float64(v)
		} else if float64(v) <= -SwishThreshold {
			want = 0
		}
		assert.InDelta(t, want, float64(y.AsFloat32()[i]), 1e-5, "x = %f", v)
	}
}

func TestMishMatchesReference(t *testing.T) {
	d := gpu(t)
	in := []float32{-6, -1, 0, 1, 6}
	x := floats(t, tensor.Shape{5}, in)

	y, err := d.Mish(x, AllocateNew)
	require.NoError(t, err)

	for i, v := range in {
		want := float64(v)
		if float64(v) < MishThreshold {
			want = float64(v) * math.Tanh(math.Log(1+math.Exp(float64(v))))
		}
		assert.InDelta(t, want, float64(y.AsFloat32()[i]), 1e-5, "x = %f", v)
	}
}

func TestHardSwishVariants(t *testing.T) {
	d := gpu(t)
	in := []float32{-4, -2, 0, 1, 4}
	x := floats(t, tensor.Shape{5}, in)

	y, err := d.HardSwish(x, AllocateNew)
	require.NoError(t, err)
	for i, v := range in {
		var want float64
		switch {
		case float64(v) >= 2.5:
			want = float64(v)
		case float64(v) <= -2.5:
			want = 0
		default:
			want = float64(v) * (0.2*float64(v) + 0.5)
		}
		assert.InDelta(t, want, float64(y.AsFloat32()[i]), 1e-5, "hard_swish x = %f", v)
	}

	m, err := d.HardSwishMobilenet(x, AllocateNew)
	require.NoError(t, err)
	for i, v := range in {
		var want float64
		switch {
		case float64(v) >= 3:
			want = float64(v)
		case float64(v) <= -3:
			want = 0
		default:
			want = float64(v) * (float64(v) + 3) / 6
		}
		assert.InDelta(t, want, float64(m.AsFloat32()[i]), 1e-5, "mobilenet x = %f", v)
	}
}

func TestBackpropClippedLinearGates(t *testing.T) {
	d := gpu(t)
	// With defaults, the forward output is inside (0, 1) only for
	// x strictly between 0 and 1.
	x := floats(t, tensor.Shape{4}, []float32{-1, 0.5, 0.25, 2})
	dY := floats(t, tensor.Shape{4}, []float32{1, 1, 1, 1})

	dX, err := d.BackpropClippedLinear(dY, x, DefaultClippedLinearParams(), AllocateNew)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 1, 0}, dX.AsFloat32())
}

func TestBackpropSwishUsesForwardOutput(t *testing.T) {
	d := gpu(t)
	in := []float32{-2, -0.5, 0.5, 2}
	x := floats(t, tensor.Shape{4}, in)
	dY := floats(t, tensor.Shape{4}, []float32{1, 1, 1, 1})

	y, err := d.Swish(x, AllocateNew)
	require.NoError(t, err)
	dX, err := d.BackpropSwish(dY, x, y, AllocateNew)
	require.NoError(t, err)

	for i, v := range in {
		sig := 1 / (1 + math.Exp(-float64(v)))
		yv := float64(v) * sig
		want := yv + sig*(1-yv)
		assert.InDelta(t, want, float64(dX.AsFloat32()[i]), 1e-5, "x = %f", v)
	}
}

func TestSeq2ColSegmentsStayIsolated(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{4, 1}, []float32{1, 2, 3, 4})

	y, err := d.Seq2Col(x, 1, tensor.Lengths(2, 2))
	require.NoError(t, err)
	require.True(t, y.Shape().Equal(tensor.Shape{4, 3}))

	// Window slots outside a row's segment stay zero.
	assert.Equal(t, []float32{
		0, 1, 2,
		1, 2, 0,
		0, 3, 4,
		3, 4, 0,
	}, y.AsFloat32())
}

func TestSeq2ColNilLengthsIsOneSegment(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{3, 1}, []float32{1, 2, 3})

	y, err := d.Seq2Col(x, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{
		0, 1, 2,
		1, 2, 3,
		2, 3, 0,
	}, y.AsFloat32())
}

func TestBackpropSeq2ColAccumulates(t *testing.T) {
	d := gpu(t)
	// With unit window gradients, each row's gradient counts the
	// forward slots that copied it.
	dY := floats(t, tensor.Shape{4, 3}, []float32{
		1, 1, 1,
		1, 1, 1,
		1, 1, 1,
		1, 1, 1,
	})

	dX, err := d.BackpropSeq2Col(dY, 1, tensor.Lengths(2, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 2, 2}, dX.AsFloat32())
}

func TestSeq2ColAdjoint(t *testing.T) {
	d := gpu(t)
	// <seq2col(x), dY> must equal <x, backprop_seq2col(dY)>.
	xData := []float32{0.5, -1, 2, 1.5, -0.25, 3}
	dYData := make([]float32, 18)
	for i := range dYData {
		dYData[i] = float32(i%5) - 2
	}
	x := floats(t, tensor.Shape{6, 1}, xData)
	dY := floats(t, tensor.Shape{6, 3}, dYData)

	y, err := d.Seq2Col(x, 1, tensor.Lengths(4, 2))
	require.NoError(t, err)
	dX, err := d.BackpropSeq2Col(dY, 1, tensor.Lengths(4, 2))
	require.NoError(t, err)

	var lhs, rhs float64
	for i, v := range y.AsFloat32() {
		lhs += float64(v) * float64(dYData[i])
	}
	for i, v := range dX.AsFloat32() {
		rhs += float64(xData[i]) * float64(v)
	}
	assert.InDelta(t, lhs, rhs, 1e-4)
}

func TestMaxoutPicksLowestIndexOnTies(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{1, 2, 3}, []float32{
		5, 5, 1, // tie between pieces 0 and 1
		2, 7, 7, // tie between pieces 1 and 2
	})

	best, which, err := d.Maxout(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 7}, best.AsFloat32())
	assert.Equal(t, []int32{0, 1}, which.AsInt32())
}

func TestBackpropMaxoutScattersToWinners(t *testing.T) {
	d := gpu(t)
	dY := floats(t, tensor.Shape{1, 2}, []float32{10, 20})
	which, err := tensor.FromSlice(tensor.Shape{1, 2}, []int32{2, 0})
	require.NoError(t, err)

	dX, err := d.BackpropMaxout(dY, which, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{
		0, 0, 10,
		20, 0, 0,
	}, dX.AsFloat32())
}

func TestMaxoutRoundTrip(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{2, 1, 2}, []float32{1, 4, 3, 2})

	_, which, err := d.Maxout(x)
	require.NoError(t, err)
	dY := floats(t, tensor.Shape{2, 1}, []float32{1, 1})
	dX, err := d.BackpropMaxout(dY, which, 2)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 1, 1, 0}, dX.AsFloat32())
}

func TestReduceSumPerSegment(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{5, 2}, []float32{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
		5, 50,
	})

	out, err := d.ReduceSum(x, tensor.Lengths(3, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 60, 9, 90}, out.AsFloat32())
}

func TestReduceMeanDividesByLength(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{5, 1}, []float32{1, 2, 3, 4, 5})

	out, err := d.ReduceMean(x, tensor.Lengths(3, 2))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, float64(out.AsFloat32()[0]), 1e-5)
	assert.InDelta(t, 4.5, float64(out.AsFloat32()[1]), 1e-5)
}

func TestReduceMeanEmptySegmentStaysFinite(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{2, 1}, []float32{3, 5})

	out, err := d.ReduceMean(x, tensor.Lengths(0, 2))
	require.NoError(t, err)
	assert.Zero(t, out.AsFloat32()[0])
	assert.InDelta(t, 4.0, float64(out.AsFloat32()[1]), 1e-5)
}

func TestReduceMaxRecordsWinningRow(t *testing.T) {
	d := gpu(t)
	x := floats(t, tensor.Shape{5, 2}, []float32{
		1, 9,
		7, 2,
		3, 3,
		0, 8,
		6, 8, // column 1 ties row 3; lowest row wins
	})

	maxes, which, err := d.ReduceMax(x, tensor.Lengths(3, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 9, 6, 8}, maxes.AsFloat32())
	assert.Equal(t, []int32{1, 0, 1, 0}, which.AsInt32())
}

func TestBackpropReduceSumBroadcasts(t *testing.T) {
	d := gpu(t)
	dSum := floats(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})

	dX, err := d.BackpropReduceSum(dSum, tensor.Lengths(2, 1))
	require.NoError(t, err)
	assert.Equal(t, []float32{
		1, 2,
		1, 2,
		3, 4,
	}, dX.AsFloat32())
}

func TestBackpropReduceMeanDividesByLength(t *testing.T) {
	d := gpu(t)
	dMean := floats(t, tensor.Shape{2, 1}, []float32{6, 4})

	dX, err := d.BackpropReduceMean(dMean, tensor.Lengths(3, 2))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, float64(dX.AsFloat32()[0]), 1e-5)
	assert.InDelta(t, 2.0, float64(dX.AsFloat32()[1]), 1e-5)
	assert.InDelta(t, 2.0, float64(dX.AsFloat32()[2]), 1e-5)
	assert.InDelta(t, 2.0, float64(dX.AsFloat32()[3]), 1e-5)
	assert.InDelta(t, 2.0, float64(dX.AsFloat32()[4]), 1e-5)
}

func TestBackpropReduceMaxScattersToWinningRows(t *testing.T) {
	d := gpu(t)
	dMaxes := floats(t, tensor.Shape{2, 1}, []float32{10, 20})
	which, err := tensor.FromSlice(tensor.Shape{2, 1}, []int32{1, 0})
	require.NoError(t, err)

	dX, err := d.BackpropReduceMax(dMaxes, which, tensor.Lengths(3, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 10, 0, 20, 0}, dX.AsFloat32())
}

func TestHashDeterministicAndSeedSensitive(t *testing.T) {
	d := gpu(t)
	ids, err := tensor.FromSlice(tensor.Shape{3}, []uint64{0, 42, math.MaxUint64})
	require.NoError(t, err)

	a, err := d.Hash(ids, 7)
	require.NoError(t, err)
	b, err := d.Hash(ids, 7)
	require.NoError(t, err)
	c, err := d.Hash(ids, 8)
	require.NoError(t, err)

	assert.Equal(t, a.AsUint32(), b.AsUint32())
	assert.NotEqual(t, a.AsUint32(), c.AsUint32())
	assert.True(t, a.Shape().Equal(tensor.Shape{3, 4}))
}

func TestHashMatchesReference(t *testing.T) {
	d := gpu(t)
	in := []uint64{0, 1, 42, 1<<32 - 1, 1 << 40, math.MaxUint64}
	ids, err := tensor.FromSlice(tensor.Shape{len(in)}, in)
	require.NoError(t, err)

	out, err := d.Hash(ids, 3)
	require.NoError(t, err)

	words := out.AsUint32()
	for i, id := range in {
		h1, h2 := murmur128Ref(id, 3)
		assert.Equal(t, uint32(h1), words[i*4+0], "id %d word 0", id)
		assert.Equal(t, uint32(h1>>32), words[i*4+1], "id %d word 1", id)
		assert.Equal(t, uint32(h2), words[i*4+2], "id %d word 2", id)
		assert.Equal(t, uint32(h2>>32), words[i*4+3], "id %d word 3", id)
	}
}

// murmur128Ref is MurmurHash3 x64-128 restricted to one 8-byte key.
func murmur128Ref(id uint64, seed uint32) (uint64, uint64) {
	const c1 = 0x87c37b91114253d5
	const c2 = 0x4cf5ab384c74f995

	h1, h2 := uint64(seed), uint64(seed)

	k1 := id * c1
	k1 = bits.RotateLeft64(k1, 31)
	k1 *= c2
	h1 ^= k1

	h1 ^= 8
	h2 ^= 8
	h1 += h2
	h2 += h1
	h1 = fmix64Ref(h1)
	h2 = fmix64Ref(h2)
	h1 += h2
	h2 += h1
	return h1, h2
}

func fmix64Ref(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

func TestFloat64VariantsWhenSupported(t *testing.T) {
	d := gpu(t)
	if !d.Registry().Float64Supported() {
		t.Skip("adapter has no float64 shader support")
	}
	x, err := tensor.FromSlice(tensor.Shape{2, 2}, []float64{1, -1, 0, 2})
	require.NoError(t, err)

	y, err := d.ClippedLinear(x, DefaultClippedLinearParams(), AllocateNew)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 1}, y.AsFloat64())
}

func TestTransferStatsAccumulate(t *testing.T) {
	d := gpu(t)
	before := d.Registry().Stats()

	x := floats(t, tensor.Shape{128}, make([]float32, 128))
	_, err := d.Gelu(x, AllocateNew)
	require.NoError(t, err)

	after := d.Registry().Stats()
	assert.Greater(t, after.Launches, before.Launches)
	assert.GreaterOrEqual(t, after.UploadedBytes-before.UploadedBytes, uint64(512))
	assert.GreaterOrEqual(t, after.DownloadedBytes-before.DownloadedBytes, uint64(512))
}
