package domain

import "testing"

func TestCropSetSignature(t *testing.T) {
	tests := []struct {
		name string
		c    CropSet
		want string
	}{
		{"empty", nil, ""},
		{"single", CropSet{1.0}, "1"},
		{"multi", CropSet{1.0, 0.85}, "1,0.85"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Signature(); got != tt.want {
				t.Errorf("Signature() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCropSetPrefixOf(t *testing.T) {
	full := CropSet{1.0, 0.85}

	tests := []struct {
		name string
		c    CropSet
		want bool
	}{
		{"fast is prefix of full", CropSet{1.0}, true},
		{"same set is not a strict prefix", CropSet{1.0, 0.85}, false},
		{"different head", CropSet{0.85}, false},
		{"empty is never a prefix", nil, false},
		{"longer than full", CropSet{1.0, 0.85, 0.7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.PrefixOf(full); got != tt.want {
				t.Errorf("PrefixOf(%v) = %v, want %v", full, got, tt.want)
			}
		})
	}
}
