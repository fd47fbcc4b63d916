package luma

import "testing"

func TestPlaneValidate(t *testing.T) {
	cases := []struct {
		name    string
		plane   Plane
		wantErr bool
	}{
		{"ok", Plane{Width: 4, Height: 2, Stride: 4, Data: make([]byte, 8)}, false},
		{"ok with padding", Plane{Width: 4, Height: 2, Stride: 8, Data: make([]byte, 16)}, false},
		{"zero width", Plane{Width: 0, Height: 2, Stride: 4, Data: make([]byte, 8)}, true},
		{"stride too small", Plane{Width: 4, Height: 2, Stride: 3, Data: make([]byte, 8)}, true},
		{"buffer too small", Plane{Width: 4, Height: 2, Stride: 4, Data: make([]byte, 4)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plane.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPlaneRowAndAt(t *testing.T) {
	p := Plane{
		Width:  3,
		Height: 2,
		Stride: 4,
		Data:   []byte{1, 2, 3, 0, 4, 5, 6, 0},
	}
	if got := p.At(1, 1); got != 5 {
		t.Fatalf("At(1,1) = %d, want 5", got)
	}
	row := p.Row(0)
	if len(row) != 3 || row[0] != 1 || row[2] != 3 {
		t.Fatalf("Row(0) = %v, want [1 2 3]", row)
	}
}
