package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderProducesClassifiedError(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := WrapError(cause, CategoryNetwork, "clone failed").
		Transient().
		WithContext("url", "https://example.com/three.js.git").
		Build()

	assert.Equal(t, CategoryNetwork, err.Category())
	assert.Equal(t, SeverityError, err.Severity())
	assert.True(t, err.CanRetry())
	assert.False(t, err.IsFatal())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "network: clone failed: connection reset", err.Error())

	url, ok := err.Fields().Get("url")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/three.js.git", url)
}

func TestBuildReturnsIndependentErrors(t *testing.T) {
	b := BuildError("npm run build failed").WithContext("stage", "build")
	first := b.Build()
	second := b.WithContext("exit_code", 2).Build()

	_, ok := first.Fields().Get("exit_code")
	assert.False(t, ok)
	_, ok = second.Fields().Get("exit_code")
	assert.True(t, ok)
}

func TestWithFieldDoesNotMutateOriginal(t *testing.T) {
	orig := BuildError("npm run build failed").WithContext("stage", "build").Build()
	extended := orig.WithField("exit_code", 2)

	_, ok := orig.Fields().Get("exit_code")
	assert.False(t, ok)
	v, ok := extended.Fields().Get("exit_code")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	stage, _ := extended.Fields().Get("stage")
	assert.Equal(t, "build", stage)
}

func TestAsClassifiedFindsWrappedError(t *testing.T) {
	inner := CorruptRepositoryError("missing .git").Build()
	wrapped := fmt.Errorf("sync: %w", inner)

	c, ok := AsClassified(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, c)
	assert.True(t, HasCategory(wrapped, CategoryCorruptRepository))
	assert.False(t, HasCategory(stderrors.New("plain"), CategoryCorruptRepository))
	assert.Equal(t, CategoryCorruptRepository, CategoryOf(wrapped))
	assert.Equal(t, CategoryInternal, CategoryOf(stderrors.New("plain")))
}

func TestCLIExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	cases := map[string]struct {
		err  error
		code int
	}{
		"nil":        {nil, 0},
		"plain":      {stderrors.New("x"), 1},
		"validation": {ValidationError("bad").Build(), 2},
		"config":     {ConfigError("bad").Build(), 7},
		"network":    {NetworkError("down").Build(), 8},
		"timeout":    {TimeoutError("slow").Build(), 8},
		"build":      {BuildError("failed").Build(), 11},
		"filesystem": {FileSystemError("disk full").Build(), 11},
		"daemon":     {DaemonError("stopped").Build(), 12},
		"internal":   {InternalError("bug").Build(), 10},
		"unknown":    {NewError("other", "x").Build(), 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.code, a.ExitCodeFor(tc.err))
		})
	}
}

func TestCLIHandleErrorWritesMessageAndExits(t *testing.T) {
	var out bytes.Buffer
	var code int
	a := NewCLIErrorAdapter(false, nil)
	a.out = &out
	a.exit = func(c int) { code = c }

	a.HandleError(ConfigError("sources must not be empty").Build())

	assert.Equal(t, 7, code)
	assert.Equal(t, "Error: sources must not be empty\n", out.String())
}

func TestCLIFormatError(t *testing.T) {
	err := WrapError(stderrors.New("disk full"), CategoryFileSystem, "copy failed").Build()

	assert.Equal(t, "Error: copy failed", NewCLIErrorAdapter(false, nil).FormatError(err))
	assert.Equal(t, "Error: filesystem: copy failed: disk full", NewCLIErrorAdapter(true, nil).FormatError(err))
	assert.Equal(t, "Internal error occurred (use -v for details)", NewCLIErrorAdapter(false, nil).FormatError(InternalError("bug").Build()))
}

func TestHTTPAdapterWritesJSON(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)

	a.WriteErrorResponse(rec, req, NetworkError("upstream unreachable").WithContext("source", "primary").Build())

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"upstream unreachable","code":"network","details":{"source":"primary"},"retryable":true}`, rec.Body.String())
}

func TestHTTPStatusCodes(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	assert.Equal(t, http.StatusOK, a.StatusCodeFor(nil))
	assert.Equal(t, http.StatusInternalServerError, a.StatusCodeFor(stderrors.New("boom")))
	assert.Equal(t, http.StatusNotFound, a.StatusCodeFor(NewError(CategoryNotFound, "gone").Build()))
	assert.Equal(t, http.StatusBadRequest, a.StatusCodeFor(ValidationError("bad").Build()))
	assert.Equal(t, http.StatusServiceUnavailable, a.StatusCodeFor(RuntimeError("not built").Build()))
}
