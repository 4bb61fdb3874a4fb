package errors

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts a non-transient error of the given category.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		message:  message,
	}}
}

// WrapError starts an error with cause as its unwrap target.
func WrapError(cause error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.err.cause = cause
	return b
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	b.err.severity = SeverityFatal
	return b
}

func (b *ErrorBuilder) Warning() *ErrorBuilder {
	b.err.severity = SeverityWarning
	return b
}

// Transient marks the failure as one a later attempt may not hit.
func (b *ErrorBuilder) Transient() *ErrorBuilder {
	b.err.transient = true
	return b
}

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.fields = b.err.fields.with(key, value)
	return b
}

func (b *ErrorBuilder) Build() *ClassifiedError {
	out := b.err
	return &out
}

// ConfigError reports an unusable configuration file or flag.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// NetworkError reports an unreachable source.
func NetworkError(message string) *ErrorBuilder {
	return NewError(CategoryNetwork, message).Transient()
}

func TimeoutError(message string) *ErrorBuilder {
	return NewError(CategoryTimeout, message).Transient()
}

// CorruptRepositoryError reports a checkout without usable metadata.
func CorruptRepositoryError(message string) *ErrorBuilder {
	return NewError(CategoryCorruptRepository, message)
}

func BuildError(message string) *ErrorBuilder {
	return NewError(CategoryBuild, message)
}

func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message)
}

func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

func DaemonError(message string) *ErrorBuilder {
	return NewError(CategoryDaemon, message).Fatal()
}

func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
