package alarm

import (
	"errors"
	"math"
	"testing"
)

func evalString(t *testing.T, src string, env Observables) float64 {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) error = %v", src, err)
	}
	v, err := e.Eval(env)
	if err != nil {
		t.Fatalf("Eval(%q) error = %v", src, err)
	}
	return v
}

func TestCompile_Evaluates(t *testing.T) {
	env := Observables{"Ileak1": -2e-8, "Vg1": 1.5, "Vg2": 0.5, "Rs": 0}
	tests := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4 - 1", 1.5},
		{"-Vg1", -1.5},
		{"--Vg1", 1.5},
		{"+Vg1", 1.5},
		{"abs(Ileak1) > 1e-8", 1},
		{"np.abs(Ileak1) > 1e-8", 1},
		{"abs(Ileak1) > 1E-7", 0},
		{"np.abs(Vg1-Vg2)", 1},
		{"Vg1 >= 1.5 && Vg2 < 1", 1},
		{"Vg1 > 2 || Vg2 == 0.5", 1},
		{"Vg1 > 2 or Vg2 != 0.5", 0},
		{"not (Vg1 > 2) and true", 1},
		{"!Rs", 1},
		{"max(Vg1, Vg2, 3)", 3},
		{"min(Vg1, Vg2)", 0.5},
		{"sqrt(4) + log10(100) + exp(0)", 5},
		{".5 * 2", 1},
		{"2.5e+1", 25},
		{"Vg1 <= 1.5", 1},
		{"False", 0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := evalString(t, tt.src, env); got != tt.want {
				t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestCompile_ShortCircuit(t *testing.T) {
	// The right-hand side references an undefined name but is never evaluated.
	if got := evalString(t, "0 && missing", Observables{}); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
	if got := evalString(t, "1 || missing", Observables{}); got != 1 {
		t.Errorf("got %v, want 1", got)
	}
}

func TestCompile_DivisionByZeroIsInf(t *testing.T) {
	if got := evalString(t, "1 / Rs", Observables{"Rs": 0}); !math.IsInf(got, 1) {
		t.Errorf("got %v, want +Inf", got)
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 +",
		"(1 + 2",
		"abs(1, 2)",
		"max()",
		"foo(1)",
		"np.x",
		"1 $ 2",
		"Vg1 Vg2",
		"abs(1",
		"1 < 2 < 3",
		")",
	} {
		t.Run(src, func(t *testing.T) {
			if _, err := Compile(src); err == nil {
				t.Errorf("Compile(%q) expected error", src)
			}
		})
	}
}

func TestEval_Undefined(t *testing.T) {
	e, err := Compile("abs(Ileak3) > 1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Eval(Observables{"Ileak1": 0})
	var undef *UndefinedError
	if !errors.As(err, &undef) {
		t.Fatalf("expected UndefinedError, got %v", err)
	}
	if undef.Name != "Ileak3" {
		t.Errorf("undefined name = %q, want Ileak3", undef.Name)
	}
}

func TestRefs(t *testing.T) {
	e, err := Compile("abs(Vg1 - Vg2) > Vg1 * 2 || Ileak")
	if err != nil {
		t.Fatal(err)
	}
	got := Refs(e)
	want := []string{"Vg1", "Vg2", "Ileak"}
	if len(got) != len(want) {
		t.Fatalf("Refs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Refs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExprString(t *testing.T) {
	e, err := Compile("abs(a - 1) > -2")
	if err != nil {
		t.Fatal(err)
	}
	if got := e.String(); got != "(abs((a - 1)) > -2)" {
		t.Errorf("String() = %q", got)
	}
}
