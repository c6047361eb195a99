package semver

import (
	"fmt"
	"slices"
	"testing"
)

func TestSatisfies(t *testing.T) {
	tests := []struct {
		version, rng string
		want         bool
	}{
		{"1.2.3", "^1.0.0", true},
		{"2.0.0", "^1.0.0", false},
		{"0.2.5", "^0.2.3", true},
		{"0.3.0", "^0.2.3", false},
		{"0.0.4", "^0.0.3", false},
		{"1.2.9", "~1.2.3", true},
		{"1.3.0", "~1.2.3", false},
		{"3.1.0", ">=3.0.0", true},
		{"2.9.9", ">=3.0.0", false},
		{"1.0.0", ">= 1.0.0", true},
		{"1.5.0", "1.x", true},
		{"2.0.0", "1.x", false},
		{"1.5.0", "1.2.3 - 1.6.0", true},
		{"1.6.1", "1.2.3 - 1.6.0", false},
		{"18.2.0", "^17.0.0 || ^18.0.0", true},
		{"16.14.0", "^17.0.0 || ^18.0.0", false},
		{"1.0.0", "*", true},
		{"1.0.0", "", true},
		{"1.9.0", "<2", true},
		{"2.0.0", "<2", false},
		{"1.2.9", "<=1.2", true},
		{"1.2.3", "=1.2.3", true},
		{"1.2.4", "1.2.3", false},
		{"1.4.0", ">1.2.3 <2.0.0", true},
		{"2.0.0-beta.1", "^1.0.0", false},
		{"1.2.4-beta.2", "^1.2.4-beta.1", true},
		{"1.3.0-beta", "^1.2.4-beta.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.version+" "+tt.rng, func(t *testing.T) {
			got, err := Satisfies(tt.version, tt.rng)
			if err != nil {
				t.Fatalf("Satisfies() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.version, tt.rng, got, tt.want)
			}
		})
	}
}

func TestSatisfiesRejectsNonSemverRanges(t *testing.T) {
	for _, rng := range []string{"latest", "github:user/repo", "file:../lib", "1.2.3.4"} {
		if _, err := Satisfies("1.0.0", rng); err == nil {
			t.Errorf("Satisfies(1.0.0, %q) should fail", rng)
		}
	}
}

func TestMinVersion(t *testing.T) {
	tests := []struct {
		rng, want string
	}{
		{"^2.0.0", "2.0.0"},
		{">=1.2", "1.2.0"},
		{"~1.2.3", "1.2.3"},
		{"*", "0.0.0"},
		{"1.x", "1.0.0"},
		{"<2", "0.0.0"},
		{"^17.0.0 || ^16.8.0", "16.8.0"},
		{">1.2.3", "1.2.4"},
		{"1.2.3", "1.2.3"},
		{"latest", ""},
	}
	for _, tt := range tests {
		if got := MinVersion(tt.rng); got != tt.want {
			t.Errorf("MinVersion(%q) = %q, want %q", tt.rng, got, tt.want)
		}
	}
}

func TestNewerThan(t *testing.T) {
	versions := []string{"1.0.0", "1.1.0", "2.0.0-beta", "2.0.0", "0.9.0", "junk"}

	got := NewerThan(versions, "1.0.0")
	if want := []string{"1.1.0", "2.0.0"}; !slices.Equal(got, want) {
		t.Errorf("NewerThan(1.0.0) = %v, want %v", got, want)
	}

	got = NewerThan(versions, "2.0.0-alpha")
	if want := []string{"2.0.0-beta", "2.0.0"}; !slices.Equal(got, want) {
		t.Errorf("NewerThan(2.0.0-alpha) = %v, want %v", got, want)
	}

	got = NewerThan(versions, "")
	if want := []string{"0.9.0", "1.0.0", "1.1.0", "2.0.0"}; !slices.Equal(got, want) {
		t.Errorf("NewerThan(\"\") = %v, want %v", got, want)
	}
}

func TestCompareAndValidity(t *testing.T) {
	if Compare("1.10.0", "1.9.0") <= 0 {
		t.Error("1.10.0 should sort after 1.9.0")
	}
	if Compare("v1.0.0", "1.0.0") != 0 {
		t.Error("leading v should be ignored")
	}
	if !IsValid("18.2.0") || IsValid("18.2") || IsValid("^18.2.0") {
		t.Error("IsValid should accept only complete versions")
	}
	if !IsPrerelease("5.0.0-rc.1") || IsPrerelease("5.0.0") {
		t.Error("IsPrerelease mismatch")
	}
	if got := Max([]string{"1.0.0", "x", "3.0.0", "2.5.0"}); got != "3.0.0" {
		t.Errorf("Max() = %q, want 3.0.0", got)
	}
	if !Contains([]string{"1.0.0", "2.0.0"}, "v2.0.0") {
		t.Error("Contains should compare canonical forms")
	}
}

func ExampleSatisfies() {
	ok, _ := Satisfies("3.2.0", ">=3.0.0")
	fmt.Println(ok)
	ok, _ = Satisfies("2.4.1", ">=3.0.0")
	fmt.Println(ok)
	// Output:
	// true
	// false
}
