package stats

import (
	"math"
	"testing"
)

func TestDescribe(t *testing.T) {
	d := Describe([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if d.Mean != 5 {
		t.Errorf("Mean = %v, 期望 5", d.Mean)
	}
	if d.StdDev != 2 {
		t.Errorf("StdDev = %v, 期望 2", d.StdDev)
	}
	if d.Min != 2 || d.Max != 9 {
		t.Errorf("范围 = [%v, %v]", d.Min, d.Max)
	}

	if empty := Describe(nil); empty.Count != 0 || empty.Mean != 0 {
		t.Errorf("空输入 = %+v", empty)
	}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "完全均衡", values: []float64{3, 3, 3}, want: 1},
		{name: "空输入", values: nil, want: 1},
		{name: "有差异", values: []float64{0, 2}, want: 0.5},
		{name: "差异极大截断为0", values: []float64{0, 0, 0, 30}, want: 1 - math.Min(1, math.Sqrt(168.75)/8.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Balance(tt.values); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Balance() = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestFloats(t *testing.T) {
	got := Floats([]int{1, 2})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Floats() = %v", got)
	}
}
