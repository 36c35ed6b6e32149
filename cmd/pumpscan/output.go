package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliLogger logs to stderr at the --log-level level.
func cliLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.String("log-level")))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func requireAddress(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("wallet address is required")
	}
	return c.Args().First(), nil
}

// jqFilter keeps values for which every compiled filter is truthy.
type jqFilter []*gojq.Code

func compileJQ(filters []string) (jqFilter, error) {
	codes := make(jqFilter, 0, len(filters))
	for _, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Match runs v through every filter. v is converted to plain JSON values
// first, since gojq only understands maps, slices and scalars.
func (f jqFilter) Match(v interface{}) (bool, error) {
	if len(f) == 0 {
		return true, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value for jq: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return false, fmt.Errorf("failed to unmarshal value for jq: %w", err)
	}

	for _, code := range f {
		iter := code.Run(input)
		out, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := out.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(out) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
