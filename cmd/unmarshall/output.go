package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// newLogger returns a JSON logger on stderr. Only errors are shown unless
// --log-level says otherwise, so stdout stays clean for piping.
func newLogger(c *cli.Context) *slog.Logger {
	return slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: parseLogLevel(c.String("log-level")),
	}))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// writeOutput prints v as JSON when --json or --jq is set, and calls human
// otherwise.
func writeOutput(c *cli.Context, v interface{}, human func(w io.Writer)) error {
	w := c.App.Writer

	if expr := c.String("jq"); expr != "" {
		results, err := runJQ(expr, v)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := outputJSON(w, r); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Bool("json") {
		return outputJSON(w, v)
	}

	human(w)
	return nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// compileJQ parses and compiles each filter expression.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("invalid jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// runJQ evaluates expr against v and collects every result.
func runJQ(expr string, v interface{}) ([]interface{}, error) {
	codes, err := compileJQ([]string{expr})
	if err != nil {
		return nil, err
	}
	input, err := toJQValue(v)
	if err != nil {
		return nil, err
	}

	var results []interface{}
	iter := codes[0].Run(input)
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := r.(error); ok {
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// matchesAll reports whether every filter yields a truthy first result for v.
func matchesAll(codes []*gojq.Code, v interface{}) (bool, error) {
	input, err := toJQValue(v)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		r, ok := code.Run(input).Next()
		if !ok {
			return false, nil
		}
		if err, ok := r.(error); ok {
			return false, fmt.Errorf("jq evaluation failed: %w", err)
		}
		if !isTruthy(r) {
			return false, nil
		}
	}
	return true, nil
}

// toJQValue converts v into the plain map/slice/float64 values gojq accepts.
func toJQValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value for jq: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value for jq: %w", err)
	}
	return out, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, only false and null are falsy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
