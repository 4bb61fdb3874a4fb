package errors

import "net/http"

// ErrorCategory groups errors by the part of a sync cycle that raised them.
type ErrorCategory string

const (
	// Operator input.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Remote sources and the local checkout.
	CategoryNetwork           ErrorCategory = "network"
	CategoryGit               ErrorCategory = "git"
	CategoryCorruptRepository ErrorCategory = "corrupt_repository"
	CategoryTimeout           ErrorCategory = "timeout"

	// Producing the artifact tree.
	CategoryInstall     ErrorCategory = "install"
	CategoryBuild       ErrorCategory = "build"
	CategoryLinkRewrite ErrorCategory = "link_rewrite"
	CategoryFileSystem  ErrorCategory = "filesystem"

	// The long-running process itself.
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

type traits struct {
	exitCode   int
	httpStatus int
}

// categoryTraits is the single table both adapters read from.
var categoryTraits = map[ErrorCategory]traits{
	CategoryValidation:        {2, http.StatusBadRequest},
	CategoryConfig:            {7, http.StatusBadRequest},
	CategoryNotFound:          {8, http.StatusNotFound},
	CategoryNetwork:           {8, http.StatusBadGateway},
	CategoryGit:               {8, http.StatusBadGateway},
	CategoryTimeout:           {8, http.StatusBadGateway},
	CategoryCorruptRepository: {8, http.StatusInternalServerError},
	CategoryInstall:           {11, http.StatusServiceUnavailable},
	CategoryBuild:             {11, http.StatusServiceUnavailable},
	CategoryLinkRewrite:       {11, http.StatusInternalServerError},
	CategoryFileSystem:        {11, http.StatusInternalServerError},
	CategoryRuntime:           {12, http.StatusServiceUnavailable},
	CategoryDaemon:            {12, http.StatusServiceUnavailable},
	CategoryInternal:          {10, http.StatusInternalServerError},
}

func (c ErrorCategory) exitCode() int {
	if t, ok := categoryTraits[c]; ok {
		return t.exitCode
	}
	return 1
}

func (c ErrorCategory) httpStatus() int {
	if t, ok := categoryTraits[c]; ok {
		return t.httpStatus
	}
	return http.StatusInternalServerError
}

// ErrorSeverity controls the log level an adapter reports an error at.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // the command or process cannot continue
	SeverityError   ErrorSeverity = "error"   // the current operation failed
	SeverityWarning ErrorSeverity = "warning" // output was still produced
)

// Fields carries structured detail such as a source URL or a stage name.
type Fields map[string]any

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

func (f Fields) with(key string, value any) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = value
	return out
}
