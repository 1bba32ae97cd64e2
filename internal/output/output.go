// Package output formats captured results and writes them where the caller
// asked for them.
package output

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/skjsjhb/LCAP/internal/capture"
)

// Payload prefixes. The launcher that spawned us parses these.
const (
	CodePrefix  = "LCAP:CODE="
	ErrorPrefix = "LCAP:ERR="
)

// Target is where a payload goes: standard output, or a file when Path is set.
type Target struct {
	Path string
}

// Stdout is the standard output target.
func Stdout() Target { return Target{} }

// File targets the file at path.
func File(path string) Target { return Target{Path: path} }

// IsFile reports whether t is a file target.
func (t Target) IsFile() bool { return t.Path != "" }

func (t Target) String() string {
	if t.IsFile() {
		return "file:" + t.Path
	}
	return "stdout"
}

// Format frames a terminal outcome as a payload line. It returns false for
// Continue, which has nothing to report.
func Format(o capture.Outcome) (string, bool) {
	switch o.Kind {
	case capture.Code:
		return CodePrefix + o.Value, true
	case capture.Error:
		return ErrorPrefix + o.Value, true
	default:
		return "", false
	}
}

// Sink writes payloads to its Target.
type Sink struct {
	target Target
	fs     afero.Fs
	stdout io.Writer
}

// NewSink creates a Sink. fs is used for file targets, stdout for the rest.
func NewSink(target Target, fs afero.Fs, stdout io.Writer) *Sink {
	return &Sink{target: target, fs: fs, stdout: stdout}
}

// Emit writes payload. A file target receives exactly the payload as its
// whole content, created or truncated. There is no fallback to stdout when
// the file cannot be written; the error is returned and must be treated as
// fatal.
func (s *Sink) Emit(payload string) error {
	if s.target.IsFile() {
		if err := afero.WriteFile(s.fs, s.target.Path, []byte(payload), 0o600); err != nil {
			return fmt.Errorf("failed to write result to %s: %w", s.target.Path, err)
		}
		return nil
	}

	if _, err := fmt.Fprintln(s.stdout, payload); err != nil {
		return fmt.Errorf("failed to write result to stdout: %w", err)
	}
	return nil
}
