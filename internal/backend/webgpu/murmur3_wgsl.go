package webgpu

// MurmurHash3 x64-128, specialized to 8-byte keys. WGSL has no 64-bit
// integers, so every u64 rides in a vec2<u32> (x = low word, y = high
// word) with explicit carry handling. Keys arrive as the two little-
// endian words of each uint64 id; the output row is the 128-bit digest
// as four u32 words, matching the byte layout of the (h1, h2) pair.
const hashDataSrc = `
@group(0) @binding(0) var<storage, read> ids: array<vec2<u32>>;
@group(0) @binding(1) var<storage, read_write> out: array<u32>;

struct Params {
    n: u32,
    seed: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

fn add64(a: vec2<u32>, b: vec2<u32>) -> vec2<u32> {
    let lo = a.x + b.x;
    var hi = a.y + b.y;
    if (lo < a.x) {
        hi += 1u;
    }
    return vec2<u32>(lo, hi);
}

// Full 32x32 -> 64 bit product.
fn mul32(a: u32, b: u32) -> vec2<u32> {
    let a_lo = a & 0xffffu;
    let a_hi = a >> 16u;
    let b_lo = b & 0xffffu;
    let b_hi = b >> 16u;
    let ll = a_lo * b_lo;
    let lh = a_lo * b_hi;
    let hl = a_hi * b_lo;
    let hh = a_hi * b_hi;
    let mid = lh + hl;
    let mid_carry = select(0u, 0x10000u, mid < lh);
    let lo = ll + (mid << 16u);
    let lo_carry = select(0u, 1u, lo < ll);
    return vec2<u32>(lo, hh + (mid >> 16u) + mid_carry + lo_carry);
}

fn mul64(a: vec2<u32>, b: vec2<u32>) -> vec2<u32> {
    let p = mul32(a.x, b.x);
    return vec2<u32>(p.x, p.y + a.x * b.y + a.y * b.x);
}

fn rotl64(v: vec2<u32>, r: u32) -> vec2<u32> {
    if (r < 32u) {
        let lo = (v.x << r) | (v.y >> (32u - r));
        let hi = (v.y << r) | (v.x >> (32u - r));
        return vec2<u32>(lo, hi);
    }
    if (r == 32u) {
        return vec2<u32>(v.y, v.x);
    }
    let s = r - 32u;
    let lo = (v.y << s) | (v.x >> (32u - s));
    let hi = (v.x << s) | (v.y >> (32u - s));
    return vec2<u32>(lo, hi);
}

// Logical right shift; only ever called with s >= 32 here.
fn shr64(v: vec2<u32>, s: u32) -> vec2<u32> {
    if (s < 32u) {
        return vec2<u32>((v.x >> s) | (v.y << (32u - s)), v.y >> s);
    }
    return vec2<u32>(v.y >> (s - 32u), 0u);
}

fn fmix64(k0: vec2<u32>) -> vec2<u32> {
    var k = k0;
    k = k ^ shr64(k, 33u);
    k = mul64(k, vec2<u32>(0xed558ccdu, 0xff51afd7u));
    k = k ^ shr64(k, 33u);
    k = mul64(k, vec2<u32>(0x1a85ec53u, 0xc4ceb9feu));
    k = k ^ shr64(k, 33u);
    return k;
}

@compute @workgroup_size({{WG}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let c1 = vec2<u32>(0x114253d5u, 0x87c37b91u);
    let c2 = vec2<u32>(0x4c74f995u, 0x4cf5ab38u);
    let step = nwg.x * {{WG}}u;
    for (var i = gid.x; i < params.n; i += step) {
        var h1 = vec2<u32>(params.seed, 0u);
        var h2 = vec2<u32>(params.seed, 0u);

        // 8-byte tail (no 16-byte body blocks for a single u64 key).
        var k1 = ids[i];
        k1 = mul64(k1, c1);
        k1 = rotl64(k1, 31u);
        k1 = mul64(k1, c2);
        h1 = h1 ^ k1;

        // Finalization with total length 8.
        h1 = h1 ^ vec2<u32>(8u, 0u);
        h2 = h2 ^ vec2<u32>(8u, 0u);
        h1 = add64(h1, h2);
        h2 = add64(h2, h1);
        h1 = fmix64(h1);
        h2 = fmix64(h2);
        h1 = add64(h1, h2);
        h2 = add64(h2, h1);

        out[i * 4u + 0u] = h1.x;
        out[i * 4u + 1u] = h1.y;
        out[i * 4u + 2u] = h2.x;
        out[i * 4u + 3u] = h2.y;
    }
}
`
