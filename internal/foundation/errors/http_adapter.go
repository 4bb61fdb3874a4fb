package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter writes classified errors as JSON responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates an adapter. A nil logger uses slog.Default.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse is the body of every error response.
type HTTPErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   Fields `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// StatusCodeFor maps err's category to a status. Plain errors are 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	c, ok := AsClassified(err)
	if !ok {
		return http.StatusInternalServerError
	}
	return c.category.httpStatus()
}

// WriteErrorResponse writes err and logs it at its severity.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, jerr := json.Marshal(a.FormatErrorResponse(err))
	if jerr != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(a.StatusCodeFor(err))
	_, _ = w.Write(body)

	level := slog.LevelError
	if c, ok := AsClassified(err); ok {
		level = c.severity.level()
	}
	a.logger.Log(r.Context(), level, "Request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
}

// FormatErrorResponse builds the response body for err.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	if err == nil {
		return HTTPErrorResponse{}
	}
	c, ok := AsClassified(err)
	if !ok {
		return HTTPErrorResponse{Error: err.Error()}
	}
	return HTTPErrorResponse{
		Error:     c.message,
		Code:      string(c.category),
		Details:   c.fields,
		Retryable: c.transient,
	}
}
