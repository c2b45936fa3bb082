package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatHuman:
		return FormatHuman, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, s)
	}
}

// Humanizer is implemented by results that know how to render themselves
// for a terminal.
type Humanizer interface {
	Human() string
}

// Emitter writes command results to stdout. Logs never go through it.
type Emitter struct {
	w      io.Writer
	format Format
}

func NewEmitter(w io.Writer, format Format) *Emitter {
	return &Emitter{w: w, format: format}
}

func (e *Emitter) Format() Format {
	return e.format
}

func (e *Emitter) Structured() bool {
	return e.format != FormatHuman
}

// Emit writes v in the emitter's format. JSON is written one document per
// line so event streams can be piped.
func (e *Emitter) Emit(v any) error {
	switch e.format {
	case FormatJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("could not marshal output: %w", err)
		}
		_, err = fmt.Fprintln(e.w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("could not marshal output: %w", err)
		}
		_, err = fmt.Fprintf(e.w, "---\n%s", data)
		return err
	default:
		if h, ok := v.(Humanizer); ok {
			_, err := fmt.Fprintln(e.w, h.Human())
			return err
		}
		if s, ok := v.(string); ok {
			_, err := fmt.Fprintln(e.w, s)
			return err
		}
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("could not marshal output: %w", err)
		}
		_, err = e.w.Write(data)
		return err
	}
}

// Println writes a human line. Structured emitters drop it.
func (e *Emitter) Println(a ...any) {
	if e.Structured() {
		return
	}
	_, _ = fmt.Fprintln(e.w, a...)
}

func (e *Emitter) Printf(format string, a ...any) {
	if e.Structured() {
		return
	}
	_, _ = fmt.Fprintf(e.w, format, a...)
}

func (e *Emitter) Writer() io.Writer {
	return e.w
}
