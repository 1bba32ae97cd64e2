// File: cmd/lcap/main_test.go
package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skjsjhb/LCAP/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes the panic log and exits 1", func(t *testing.T) {
		var written []byte
		var path string
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, written = name, data
			return nil
		}
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 1, exitCode)
		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: boom")
		assert.Contains(t, string(written), "goroutine")
	})

	t.Run("still exits 1 when the log cannot be written", func(t *testing.T) {
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only") }
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic(errors.New("boom"))
		}()

		assert.Equal(t, 1, exitCode)
	})

	t.Run("no panic does nothing", func(t *testing.T) {
		osWriteFile = func(string, []byte, os.FileMode) error {
			t.Fatal("must not write a panic log")
			return nil
		}
		osExit = func(int) { t.Fatal("must not exit") }

		func() {
			defer handlePanic()
		}()
	})
}

func TestMain_ExitCode(t *testing.T) {
	t.Cleanup(resetMocks)

	execute = func(context.Context) int { return 1 }
	exitCode := -1
	osExit = func(code int) { exitCode = code }

	main()
	assert.Equal(t, 1, exitCode)
}
