package buildinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	for _, prefix := range []string{"version: ", "commit: ", "built: "} {
		if !strings.Contains(got, prefix) {
			t.Errorf("String() = %q, missing %q", got, prefix)
		}
	}
}

func TestTemplate(t *testing.T) {
	got := Template()
	if !strings.HasPrefix(got, "{{.Name}} "+Version) {
		t.Errorf("Template() = %q", got)
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"none", "none"},
		{"0123456789abcdef0123", "0123456789ab"},
	}
	for _, tt := range tests {
		if got := short(tt.in); got != tt.want {
			t.Errorf("short(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
