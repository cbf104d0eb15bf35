package utils

import (
	"testing"
)

func TestProtocolChecker(t *testing.T) {
	checker, err := NewProtocolChecker("1.2.0", ">= 1.0, < 2.0")
	if err != nil {
		t.Fatalf("NewProtocolChecker() error = %v", err)
	}
	if checker.ServerVersion() != "1.2.0" {
		t.Errorf("ServerVersion() = %s, want 1.2.0", checker.ServerVersion())
	}

	tests := []struct {
		version string
		wantErr bool
	}{
		{"1.0.0", false},
		{"1.9.3", false},
		{"1", false},
		{"2.0.0", true},
		{"0.9.0", true},
		{"not-a-version", true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := checker.Check(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
		})
	}
}

func TestProtocolChecker_NoConstraint(t *testing.T) {
	checker, err := NewProtocolChecker("1.0.0", "")
	if err != nil {
		t.Fatalf("NewProtocolChecker() error = %v", err)
	}
	if err := checker.Check("7.1.0"); err != nil {
		t.Errorf("Check() without constraint error = %v", err)
	}
	if err := checker.Check("garbage"); err == nil {
		t.Error("Check() accepted a malformed version")
	}
}

func TestNewProtocolChecker_Invalid(t *testing.T) {
	if _, err := NewProtocolChecker("one", ""); err == nil {
		t.Error("NewProtocolChecker() accepted an invalid server version")
	}
	if _, err := NewProtocolChecker("1.0.0", ">>> 1"); err == nil {
		t.Error("NewProtocolChecker() accepted an invalid constraint")
	}
}
