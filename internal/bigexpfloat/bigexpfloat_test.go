package bigexpfloat

import (
	"math"
	"math/rand"
	"testing"
)

func TestFromF64RoundTrip(t *testing.T) {
	vals := []float64{1, 2, 0.5, 123.456, 1e-300, 1e300, 0}
	for _, v := range vals {
		got := FromF64(v).AsF64()
		if math.Abs(got-v) > math.Abs(v)*1e-12 {
			t.Errorf("FromF64(%v).AsF64() = %v, want %v", v, got, v)
		}
	}
}

func TestMantissaInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := r.Float64()*1e10 - 5e9
		b := FromF64(v)
		if b.Mantissa == 0 {
			continue
		}
		abs := math.Abs(b.Mantissa)
		if abs < 1 || abs >= 2 {
			t.Fatalf("mantissa %v out of [1,2) for input %v", b.Mantissa, v)
		}
	}
}

func TestMulAgreesWithF64(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		a := r.Float64()*200 - 100
		b := r.Float64()*200 - 100
		got := FromF64(a).Mul(FromF64(b)).AsF64()
		want := a * b
		if math.Abs(got-want) > math.Abs(want)*1e-9+1e-12 {
			t.Errorf("%v * %v = %v, want %v", a, b, got, want)
		}
	}
}

func TestAddSubAgreeWithF64(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		a := r.Float64()*200 - 100
		b := r.Float64()*200 - 100
		if gotAdd := FromF64(a).Add(FromF64(b)).AsF64(); math.Abs(gotAdd-(a+b)) > 1e-9*math.Max(1, math.Abs(a+b)) {
			t.Errorf("%v + %v = %v, want %v", a, b, gotAdd, a+b)
		}
		if gotSub := FromF64(a).Sub(FromF64(b)).AsF64(); math.Abs(gotSub-(a-b)) > 1e-9*math.Max(1, math.Abs(a-b)) {
			t.Errorf("%v - %v = %v, want %v", a, b, gotSub, a-b)
		}
	}
}

func TestSubNearEqualZeroesExponent(t *testing.T) {
	a := FromF64(1.23456789)
	got := a.Sub(a)
	if got.Mantissa != 0 || got.Exponent != 0 {
		t.Errorf("a - a = %+v, want zero mantissa and exponent 0", got)
	}
}

func TestPowfNeverUnderflowsForModestExponents(t *testing.T) {
	base := FromF64(0.001)
	got := base.Powf(1000)
	if got.Mantissa == 0 {
		t.Fatalf("Powf underflowed to zero for an exponent well above ~2^-2^31")
	}
}

func TestPowfAgreesWithMath(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 200; i++ {
		base := 0.001 + r.Float64()*0.9
		exp := float64(r.Intn(50))
		got := FromF64(base).Powf(exp).AsF64()
		want := math.Pow(base, exp)
		if math.Abs(got-want) > want*1e-6+1e-300 {
			t.Errorf("Powf(%v, %v) = %v, want %v", base, exp, got, want)
		}
	}
}

func TestCmpTotalOrder(t *testing.T) {
	values := []float64{-5, -1, -0.5, 0, 0.5, 1, 5, 1e200, -1e200}
	for i, a := range values {
		for j, b := range values {
			got := FromF64(a).Cmp(FromF64(b))
			want := 0
			if a < b {
				want = -1
			} else if a > b {
				want = 1
			}
			if got != want {
				t.Errorf("Cmp(%v[%d], %v[%d]) = %d, want %d", a, i, b, j, got, want)
			}
		}
	}
}
