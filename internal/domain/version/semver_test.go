package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple version", "1.2.3", "1.2.3", false},
		{"v prefix", "v0.5.0", "0.5.0", false},
		{"prerelease", "1.2.3-rc1", "1.2.3-rc1", false},
		{"dotted prerelease", "1.0.0-rc.1", "1.0.0-rc.1", false},
		{"build metadata", "1.2.3+build.7", "1.2.3+build.7", false},
		{"prerelease and metadata", "1.2.3-beta.2+sha.abc", "1.2.3-beta.2+sha.abc", false},
		{"two components", "1.0", "", true},
		{"four components", "1.0.0.0", "", true},
		{"non-numeric", "1.a.0", "", true},
		{"leading zero", "01.0.0", "", true},
		{"empty", "", "", true},
		{"empty prerelease", "1.0.0-", "", true},
		{"empty metadata", "1.0.0+", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.input, got)
				}
				if !errors.Is(err, ErrInvalidVersion) {
					t.Errorf("Parse(%q) error %v does not match ErrInvalidVersion", tt.input, err)
				}
				var ive *InvalidVersionError
				if !errors.As(err, &ive) || ive.Version != tt.input {
					t.Errorf("Parse(%q) error should be *InvalidVersionError carrying the input", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSemanticVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"1.2.0", "1.1.9", 1},
		{"1.0.0", "1.0.0-rc.1", 1},
		{"1.0.0-rc.1", "1.0.0", -1},
		{"1.0.0-rc.2", "1.0.0-rc.10", -1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0-1", "1.0.0-alpha", -1},
		{"1.0.0-rc", "1.0.0-rc.1", -1},
		{"1.0.0+a", "1.0.0+b", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := mustParse(t, tt.a).Compare(mustParse(t, tt.b)); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSemanticVersion_Core(t *testing.T) {
	v := mustParse(t, "2.3.4-rc1+meta")
	if got := v.Core().String(); got != "2.3.4" {
		t.Errorf("Core() = %v, want 2.3.4", got)
	}
	if !v.IsPrerelease() || v.Core().IsPrerelease() {
		t.Error("Core() should drop the prerelease")
	}
	if v.Prerelease() != "rc1" || v.String() != "2.3.4-rc1+meta" {
		t.Errorf("Prerelease() = %q, String() = %q", v.Prerelease(), v.String())
	}
}

func mustParse(t *testing.T, s string) SemanticVersion {
	t.Helper()
	v, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return v
}
