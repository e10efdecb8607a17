package truststore

import (
	"slices"
	"testing"
)

func TestParseTargets(t *testing.T) {
	testCases := []struct {
		name        string
		rawValue    string
		expected    []Target
		expectError bool
	}{
		{name: "empty enables all", rawValue: "", expected: []Target{TargetSystem, TargetNSS, TargetJava}},
		{name: "blank entries enable all", rawValue: " , ,", expected: []Target{TargetSystem, TargetNSS, TargetJava}},
		{name: "single target", rawValue: "nss", expected: []Target{TargetNSS}},
		{name: "case and whitespace", rawValue: " Java , SYSTEM ", expected: []Target{TargetSystem, TargetJava}},
		{name: "duplicates collapse", rawValue: "nss,nss,system", expected: []Target{TargetSystem, TargetNSS}},
		{name: "unknown target", rawValue: "system,keychain", expectError: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			targets, err := ParseTargets(testCase.rawValue)
			if testCase.expectError {
				if err == nil {
					t.Fatalf("expected error for %q", testCase.rawValue)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse targets: %v", err)
			}
			if !slices.Equal(targets, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, targets)
			}
		})
	}
}

func TestTargetRequired(t *testing.T) {
	if !TargetSystem.Required() {
		t.Fatalf("system target must be required")
	}
	if TargetNSS.Required() || TargetJava.Required() {
		t.Fatalf("nss and java targets must be optional")
	}
}
