package webgpu

import (
	"fmt"
	"strings"
)

// The kernels are written against a scalar placeholder {{T}} and a
// workgroup-size placeholder {{WG}}, instantiated per element type at
// registry build time. Every kernel walks its output space with a
// grid-stride loop so one element is written by exactly one invocation
// regardless of the dispatch size.

// bindingKind classifies the storage bindings a kernel declares, in
// declaration order. A uniform Params binding always follows them.
type bindingKind int

const (
	bindRead bindingKind = iota
	bindReadWrite
)

// kernelSpec ties a base operation name to its source template and
// binding layout. typed kernels are instantiated for float32 and (when
// the adapter accepts f64) float64.
type kernelSpec struct {
	name     string
	src      string
	bindings []bindingKind
	typed    bool
}

// kernelSpecs is the full load list. Names follow the base operation;
// the registry keys them by (name, element type).
var kernelSpecs = []kernelSpec{
	{"clipped_linear", clippedLinearSrc, []bindingKind{bindRead, bindReadWrite}, true},
	{"backprop_clipped_linear", backpropClippedLinearSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"gelu", geluSrc, []bindingKind{bindRead, bindReadWrite}, true},
	{"backprop_gelu", backpropGeluSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"swish", swishSrc, []bindingKind{bindRead, bindReadWrite}, true},
	{"backprop_swish", backpropSwishSrc, []bindingKind{bindRead, bindRead, bindRead, bindReadWrite}, true},
	{"mish", mishSrc, []bindingKind{bindRead, bindReadWrite}, true},
	{"backprop_mish", backpropMishSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"hard_swish", hardSwishSrc, []bindingKind{bindRead, bindReadWrite}, true},
	{"backprop_hard_swish", backpropHardSwishSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"hard_swish_mobilenet", hardSwishMobilenetSrc, []bindingKind{bindRead, bindReadWrite}, true},
	{"backprop_hard_swish_mobilenet", backpropHardSwishMobilenetSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"seq2col", seq2colSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"backprop_seq2col", backpropSeq2colSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"maxout", maxoutSrc, []bindingKind{bindRead, bindReadWrite, bindReadWrite}, true},
	{"backprop_maxout", backpropMaxoutSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"reduce_sum", reduceSumSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"backprop_reduce_sum", backpropReduceSumSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"backprop_reduce_mean", backpropReduceMeanSrc, []bindingKind{bindRead, bindRead, bindReadWrite}, true},
	{"reduce_max", reduceMaxSrc, []bindingKind{bindRead, bindRead, bindReadWrite, bindReadWrite}, true},
	{"backprop_reduce_max", backpropReduceMaxSrc, []bindingKind{bindRead, bindRead, bindRead, bindReadWrite}, true},
	{HashKernelName, hashDataSrc, []bindingKind{bindRead, bindReadWrite}, false},
}

// HashKernelName is the entry point of the separate hash source blob.
const HashKernelName = "hash_data"

// scalarName maps an instantiation to its WGSL scalar type.
func instantiate(src, scalar string, workgroupSize int) string {
	out := strings.ReplaceAll(src, "{{T}}", scalar)
	return strings.ReplaceAll(out, "{{WG}}", fmt.Sprint(workgroupSize))
}

const clippedLinearSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{T}}>;

struct Params {
    slope: {{T}},
    offset: {{T}},
    min_val: {{T}},
    max_val: {{T}},
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let y = x[i] * params.slope + params.offset;
        out[i] = clamp(y, params.min_val, params.max_val);
    }
}
`

const backpropClippedLinearSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> x: array<{{T}}>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    slope: {{T}},
    offset: {{T}},
    min_val: {{T}},
    max_val: {{T}},
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let y = x[i] * params.slope + params.offset;
        let inside = y > params.min_val && y < params.max_val;
        d_x[i] = select({{T}}(0), d_y[i] * params.slope, inside);
    }
}
`

const geluSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{T}}>;

struct Params {
    threshold: {{T}},
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // tanh approximation, saturated outside [-threshold, threshold]
    let k = {{T}}(0.7978845608028654);
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        if (xi >= params.threshold) {
            out[i] = xi;
        } else if (xi <= -params.threshold) {
            out[i] = {{T}}(0);
        } else {
            let inner = k * (xi + {{T}}(0.044715) * xi * xi * xi);
            out[i] = {{T}}(0.5) * xi * ({{T}}(1) + tanh(inner));
        }
    }
}
`

const backpropGeluSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> x: array<{{T}}>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    threshold: {{T}},
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let k = {{T}}(0.7978845608028654);
    let a = {{T}}(0.044715);
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        var d: {{T}};
        if (xi >= params.threshold) {
            d = {{T}}(1);
        } else if (xi <= -params.threshold) {
            d = {{T}}(0);
        } else {
            let inner = k * (xi + a * xi * xi * xi);
            let t = tanh(inner);
            d = {{T}}(0.5) * ({{T}}(1) + t)
                + {{T}}(0.5) * xi * ({{T}}(1) - t * t) * k * ({{T}}(1) + {{T}}(3) * a * xi * xi);
        }
        d_x[i] = d_y[i] * d;
    }
}
`

const swishSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{T}}>;

struct Params {
    threshold: {{T}},
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        if (xi >= params.threshold) {
            out[i] = xi;
        } else if (xi <= -params.threshold) {
            out[i] = {{T}}(0);
        } else {
            out[i] = xi / ({{T}}(1) + exp(-xi));
        }
    }
}
`

const backpropSwishSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> x: array<{{T}}>;
@group(0) @binding(2) var<storage, read> y: array<{{T}}>;
@group(0) @binding(3) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    threshold: {{T}},
    n: u32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        var d: {{T}};
        if (xi >= params.threshold) {
            d = {{T}}(1);
        } else if (xi <= -params.threshold) {
            d = {{T}}(0);
        } else {
            let sig = {{T}}(1) / ({{T}}(1) + exp(-xi));
            d = y[i] + sig * ({{T}}(1) - y[i]);
        }
        d_x[i] = d_y[i] * d;
    }
}
`

const mishSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{T}}>;

struct Params {
    threshold: {{T}},
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        if (xi >= params.threshold) {
            out[i] = xi;
        } else {
            out[i] = xi * tanh(log({{T}}(1) + exp(xi)));
        }
    }
}
`

const backpropMishSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> x: array<{{T}}>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    threshold: {{T}},
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        var d: {{T}};
        if (xi >= params.threshold) {
            d = {{T}}(1);
        } else {
            let sp = log({{T}}(1) + exp(xi));
            let tsp = tanh(sp);
            let sig = {{T}}(1) / ({{T}}(1) + exp(-xi));
            d = tsp + xi * sig * ({{T}}(1) - tsp * tsp);
        }
        d_x[i] = d_y[i] * d;
    }
}
`

const hardSwishSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{T}}>;

struct Params {
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // x * hard_sigmoid(x), hard_sigmoid = clamp(0.2*x + 0.5, 0, 1)
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        if (xi >= {{T}}(2.5)) {
            out[i] = xi;
        } else if (xi <= {{T}}(-2.5)) {
            out[i] = {{T}}(0);
        } else {
            out[i] = xi * ({{T}}(0.2) * xi + {{T}}(0.5));
        }
    }
}
`

const backpropHardSwishSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> x: array<{{T}}>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        var d: {{T}};
        if (xi >= {{T}}(2.5)) {
            d = {{T}}(1);
        } else if (xi <= {{T}}(-2.5)) {
            d = {{T}}(0);
        } else {
            d = {{T}}(0.4) * xi + {{T}}(0.5);
        }
        d_x[i] = d_y[i] * d;
    }
}
`

const hardSwishMobilenetSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{T}}>;

struct Params {
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // x * relu6(x + 3) / 6
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        if (xi >= {{T}}(3)) {
            out[i] = xi;
        } else if (xi <= {{T}}(-3)) {
            out[i] = {{T}}(0);
        } else {
            out[i] = xi * (xi + {{T}}(3)) / {{T}}(6);
        }
    }
}
`

const backpropHardSwishMobilenetSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> x: array<{{T}}>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        let xi = x[i];
        var d: {{T}};
        if (xi >= {{T}}(3)) {
            d = {{T}}(1);
        } else if (xi <= {{T}}(-3)) {
            d = {{T}}(0);
        } else {
            d = xi / {{T}}(3) + {{T}}(0.5);
        }
        d_x[i] = d_y[i] * d;
    }
}
`

const seq2colSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> out: array<{{T}}>;

struct Params {
    nw: i32,
    b: u32,
    i_dim: u32,
    nl: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // One invocation per input row; windows never cross the row's segment.
    let nf = 2 * params.nw + 1;
    let step = nwg.x * {{WG}}u;
    for (var row = gid.x; row < params.b; row += step) {
        var seq_start: i32 = 0;
        var seq_end: i32 = 0;
        for (var s = 0u; s < params.nl; s++) {
            seq_end = seq_start + lengths[s];
            if (i32(row) < seq_end) {
                break;
            }
            seq_start = seq_end;
        }
        if (i32(row) >= seq_end) {
            continue;
        }
        for (var f: i32 = 0; f < nf; f++) {
            let src = i32(row) + f - params.nw;
            if (src < seq_start || src >= seq_end) {
                continue;
            }
            let dst_base = row * u32(nf) * params.i_dim + u32(f) * params.i_dim;
            let src_base = u32(src) * params.i_dim;
            for (var c = 0u; c < params.i_dim; c++) {
                out[dst_base + c] = x[src_base + c];
            }
        }
    }
}
`

const backpropSeq2colSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    nw: i32,
    b: u32,
    i_dim: u32,
    nl: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // Gather form of the adjoint: each original row sums the window
    // slots that copied it during the forward pass.
    let nf = 2 * params.nw + 1;
    let step = nwg.x * {{WG}}u;
    for (var row = gid.x; row < params.b; row += step) {
        var seq_start: i32 = 0;
        var seq_end: i32 = 0;
        for (var s = 0u; s < params.nl; s++) {
            seq_end = seq_start + lengths[s];
            if (i32(row) < seq_end) {
                break;
            }
            seq_start = seq_end;
        }
        if (i32(row) >= seq_end) {
            continue;
        }
        for (var c = 0u; c < params.i_dim; c++) {
            var acc = {{T}}(0);
            for (var f: i32 = 0; f < nf; f++) {
                let src = i32(row) + params.nw - f;
                if (src < seq_start || src >= seq_end) {
                    continue;
                }
                acc += d_y[u32(src) * u32(nf) * params.i_dim + u32(f) * params.i_dim + c];
            }
            d_x[row * params.i_dim + c] = acc;
        }
    }
}
`

const maxoutSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read_write> best: array<{{T}}>;
@group(0) @binding(2) var<storage, read_write> which: array<i32>;

struct Params {
    b: u32,
    i_dim: u32,
    p: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // Ties go to the lowest candidate index (ascending scan, strict >).
    let total = params.b * params.i_dim;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let base = idx * params.p;
        var v = x[base];
        var w: i32 = 0;
        for (var p = 1u; p < params.p; p++) {
            let cand = x[base + p];
            if (cand > v) {
                v = cand;
                w = i32(p);
            }
        }
        best[idx] = v;
        which[idx] = w;
    }
}
`

const backpropMaxoutSrc = `
@group(0) @binding(0) var<storage, read> d_y: array<{{T}}>;
@group(0) @binding(1) var<storage, read> which: array<i32>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    b: u32,
    i_dim: u32,
    p: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let total = params.b * params.i_dim * params.p;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let pair = idx / params.p;
        let slot = idx % params.p;
        d_x[idx] = select({{T}}(0), d_y[pair], i32(slot) == which[pair]);
    }
}
`

const reduceSumSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> out: array<{{T}}>;

struct Params {
    b: u32,
    t: u32,
    o: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let total = params.b * params.o;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let seg = idx / params.o;
        let col = idx % params.o;
        var start: i32 = 0;
        for (var s = 0u; s < seg; s++) {
            start += lengths[s];
        }
        let len = lengths[seg];
        var acc = {{T}}(0);
        for (var j: i32 = 0; j < len; j++) {
            acc += x[u32(start + j) * params.o + col];
        }
        out[idx] = acc;
    }
}
`

const backpropReduceSumSrc = `
@group(0) @binding(0) var<storage, read> d_sum: array<{{T}}>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    b: u32,
    t: u32,
    o: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let total = params.t * params.o;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let row = idx / params.o;
        let col = idx % params.o;
        var seg = 0u;
        var end: i32 = lengths[0];
        for (; seg < params.b - 1u; seg++) {
            if (i32(row) < end) {
                break;
            }
            end += lengths[seg + 1u];
        }
        d_x[idx] = d_sum[seg * params.o + col];
    }
}
`

const backpropReduceMeanSrc = `
@group(0) @binding(0) var<storage, read> d_mean: array<{{T}}>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    b: u32,
    t: u32,
    o: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let total = params.t * params.o;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let row = idx / params.o;
        let col = idx % params.o;
        var seg = 0u;
        var end: i32 = lengths[0];
        for (; seg < params.b - 1u; seg++) {
            if (i32(row) < end) {
                break;
            }
            end += lengths[seg + 1u];
        }
        d_x[idx] = d_mean[seg * params.o + col] / {{T}}(lengths[seg]);
    }
}
`

const reduceMaxSrc = `
@group(0) @binding(0) var<storage, read> x: array<{{T}}>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> maxes: array<{{T}}>;
@group(0) @binding(3) var<storage, read_write> which: array<i32>;

struct Params {
    b: u32,
    t: u32,
    o: u32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // Empty segments leave their zero-initialized output untouched.
    // Ties go to the lowest row index within the segment.
    let total = params.b * params.o;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let seg = idx / params.o;
        let col = idx % params.o;
        var start: i32 = 0;
        for (var s = 0u; s < seg; s++) {
            start += lengths[s];
        }
        let len = lengths[seg];
        if (len <= 0) {
            continue;
        }
        var v = x[u32(start) * params.o + col];
        var w: i32 = 0;
        for (var j: i32 = 1; j < len; j++) {
            let cand = x[u32(start + j) * params.o + col];
            if (cand > v) {
                v = cand;
                w = j;
            }
        }
        maxes[idx] = v;
        which[idx] = w;
    }
}
`

const backpropReduceMaxSrc = `
@group(0) @binding(0) var<storage, read> d_maxes: array<{{T}}>;
@group(0) @binding(1) var<storage, read> which: array<i32>;
@group(0) @binding(2) var<storage, read> lengths: array<i32>;
@group(0) @binding(3) var<storage, read_write> d_x: array<{{T}}>;

struct Params {
    b: u32,
    t: u32,
    o: u32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    // One invocation per (segment, column): writes only the winning row.
    let total = params.b * params.o;
    let step = nwg.x * {{WG}}u;
    for (var idx = gid.x; idx < total; idx += step) {
        let seg = idx / params.o;
        let col = idx % params.o;
        var start: i32 = 0;
        for (var s = 0u; s < seg; s++) {
            start += lengths[s];
        }
        if (lengths[seg] <= 0) {
            continue;
        }
        let row = u32(start + which[idx]);
        d_x[row * params.o + col] = d_maxes[idx];
    }
}
`
