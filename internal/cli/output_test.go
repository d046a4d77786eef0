package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"value": "42"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    buf,
		ErrWriter: errBuf,
	}

	err := formatter.Error(CLIError{
		Code:      "GRAPH_ERROR",
		Specifier: "file:///app/missing.yaml",
		Message:   "module graph: not found",
	})
	require.NoError(t, err)
	assert.Empty(t, errBuf.String(), "json errors stay on stdout")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "GRAPH_ERROR", resp.Error.Code)
	assert.Equal(t, "file:///app/missing.yaml", resp.Error.Specifier)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("42"))
	assert.Equal(t, "42\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    buf,
		ErrWriter: errBuf,
	}

	err := formatter.Error(CLIError{Code: "EVALUATION_ERROR", Specifier: "file:///a.yaml", Message: "boom"})
	require.NoError(t, err)
	assert.Empty(t, buf.String())
	assert.Equal(t, "Error [EVALUATION_ERROR] file:///a.yaml: boom\n", errBuf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(CLIError{Code: "LINK_ERROR", Message: "link failed", Details: "run-1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [LINK_ERROR]: link failed")
	assert.Contains(t, buf.String(), "Details: run-1")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "main.yaml")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loading main.yaml")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("accepts 1 arg(s), received 0")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "run failed", errors.New("boom"))
	assert.Equal(t, "run failed: boom", wrapped.Error())
	assert.False(t, IsReported(wrapped))

	wrapped.Reported = true
	assert.True(t, IsReported(wrapped))
}
