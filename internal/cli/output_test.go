package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"mutations": 3}, "ignored in json\n"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"mutations": 3.0}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(CodeScan, "decode failed", map[string]string{"tx": "tx-1"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScan, resp.Error.Code)
	assert.Equal(t, "decode failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(42, ""))
	require.NoError(t, formatter.Success(nil, "insert Agent {}\n"))
	assert.Equal(t, "42\ninsert Agent {}\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(CodeStore, "database unreachable", "dial tcp"))
	assert.Contains(t, buf.String(), "Error [E_STORE]: database unreachable")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error(CodeStore, "database unreachable", "dial tcp"))
	assert.Contains(t, buf.String(), "Details: dial tcp")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		verbose   bool
		errWriter bool
		wantOut   string
		wantErr   string
	}{
		{"text_verbose", "text", true, false, "scanning 7.json\n", ""},
		{"text_quiet", "text", false, false, "", ""},
		{"json_verbose_without_err_writer", "json", true, false, "", ""},
		{"json_verbose_with_err_writer", "json", true, true, "", "scanning 7.json\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: tt.format, Writer: out, Verbose: tt.verbose}
			if tt.errWriter {
				formatter.ErrWriter = errOut
			}

			formatter.VerboseLog("scanning %s", "7.json")
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("no such host")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: no such host", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))

	assert.Equal(t, "source drained", NewExitError(ExitFailure, "source drained").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
