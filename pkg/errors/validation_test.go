package errors

import (
	"testing"
)

func TestValidateNodeID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid script", "a.py", false},
		{"valid nested", "etl/load.sh", false},
		{"valid dotted dir", "v1.2/run", false},
		{"valid dots in name", "x..y.py", false},

		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", string(make([]byte, 300)), true},
		{"absolute", "/usr/bin/true", true},
		{"traversal", "../secret.sh", true},
		{"traversal nested", "jobs/../../x", true},
		{"null byte", "foo\x00bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNodeID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeConfig) {
				t.Errorf("ValidateNodeID(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeConfig)
			}
		})
	}
}

func TestValidatePercent(t *testing.T) {
	tests := []struct {
		v       float64
		wantErr bool
	}{
		{0, false},
		{55.5, false},
		{100, false},
		{-1, true},
		{100.1, true},
	}

	for _, tt := range tests {
		err := ValidatePercent("cpu_percent", tt.v)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePercent(%g) error = %v, wantErr %v", tt.v, err, tt.wantErr)
		}
	}
}

func TestValidateNonNegative(t *testing.T) {
	if err := ValidateNonNegative("disk_free_mb", 0); err != nil {
		t.Errorf("ValidateNonNegative(0) error = %v", err)
	}
	if err := ValidateNonNegative("disk_free_mb", -0.5); err == nil {
		t.Error("ValidateNonNegative(-0.5) error = nil, want error")
	}
}
