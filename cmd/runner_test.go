package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
	tu "github.com/desertthunder/stemx/internal/testing"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			client := &tu.MockSeparator{}

			runner := NewRunner(RunnerOpts{
				Config: config,
				Client: client,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.client != client {
				t.Error("expected client to be set")
			}
			if runner.gate == nil {
				t.Error("expected a default export gate")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("controller", func(t *testing.T) {
		t.Run("created once per kind", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Client: &tu.MockSeparator{}})

			a := runner.controller(models.KindFourStem)
			b := runner.controller(models.KindFourStem)
			c := runner.controller(models.KindSegments)

			if a != b {
				t.Error("same kind should reuse the controller")
			}
			if a == c {
				t.Error("different kinds should get separate controllers")
			}
		})

		t.Run("starts idle", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Client: &tu.MockSeparator{}})

			job := runner.controller(models.KindFourStem).Job()
			if job.Phase != models.PhaseIdle {
				t.Errorf("expected idle, got %s", job.Phase)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Client: &tu.MockSeparator{}})

		commands := runner.register()
		if len(commands) != 9 {
			t.Fatalf("expected 9 commands, got %d", len(commands))
		}

		names := make(map[string]bool)
		for _, command := range commands {
			names[command.Name] = true
		}
		for _, want := range []string{"setup", "submit", "status", "resume", "reset", "segments", "export", "download", "tui"} {
			if !names[want] {
				t.Errorf("missing command %q", want)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writeJSON(map[string]int{"segments": 3}, true); err != nil {
			t.Fatalf("writeJSON() error = %v", err)
		}
		if !strings.Contains(output.String(), "\"segments\": 3") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("writeJSON propagates write failures", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

		if err := runner.writeJSON(map[string]int{}, false); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		runner.writePlain("task %s at position %d\n", "T1", 2)
		if output.String() != "task T1 at position 2\n" {
			t.Errorf("unexpected output: %q", output.String())
		}
	})
}
