// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "testing"

func TestValidPriority(t *testing.T) {
	valid := []string{"", "00", "50", "99"}
	for _, p := range valid {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = false, want true", p)
		}
	}
	invalid := []string{"5", "100", "ab", "5a", "-1", " 5"}
	for _, p := range invalid {
		if ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = true, want false", p)
		}
	}
}

func TestStatusCrashed(t *testing.T) {
	clean := 0
	failed := 1

	cases := []struct {
		name   string
		status Status
		want   bool
	}{
		{"never started", Status{}, false},
		{"running", Status{PID: 42, Running: true}, false},
		{"stopped cleanly", Status{PID: 42, ExitCode: &clean}, false},
		{"crashed", Status{PID: 42, ExitCode: &failed}, true},
	}
	for _, tc := range cases {
		if got := tc.status.Crashed(); got != tc.want {
			t.Errorf("%s: Crashed() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
