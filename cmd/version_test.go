package cmd

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rnwolfe/envoluntary/internal/version"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{
			name:    "default version output",
			args:    []string{},
			wantOut: fmt.Sprintf("envoluntary %s", version.Full()),
		},
		{
			name:    "short flag version output",
			args:    []string{"--short"},
			wantOut: version.Short(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versionShort = false
			if err := versionCmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("flag parsing failed: %v", err)
			}

			output := strings.TrimSpace(captureStdout(t, func() {
				versionCmd.Run(nil, nil)
			}))

			if output != tt.wantOut {
				t.Errorf("output mismatch\nWant: %s\nGot: %s", tt.wantOut, output)
			}
		})
	}
}
