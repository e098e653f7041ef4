package minicode

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/nikolalohinski/gonja/v2"
)

// LogLevel represents the logging level of the native library.
type LogLevel = backend.LogLevel

// Set of logging levels supported by llama.cpp.
const (
	LogSilent = backend.LogSilent
	LogNormal = backend.LogNormal
)

type initOptions struct {
	libPath  string
	logLevel LogLevel
}

// InitOption represents options for configuring Init.
type InitOption func(*initOptions)

// WithLibPath sets the folder holding the llama.cpp shared libraries. When
// not set, MINICODE_LIB_PATH is used and then $HOME/.minicode/libraries.
func WithLibPath(libPath string) InitOption {
	return func(o *initOptions) {
		o.libPath = libPath
	}
}

// WithLogLevel sets the log level for the native library.
func WithLogLevel(logLevel LogLevel) InitOption {
	return func(o *initOptions) {
		o.logLevel = logLevel
	}
}

// Init loads the native library. Only the first call does any work, later
// calls return the result of the first.
func Init(opts ...InitOption) error {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.logLevel < LogSilent || o.logLevel > LogNormal {
		o.logLevel = LogSilent
	}

	gonja.SetLoggerOutput(io.Discard)

	return backend.Load(LibPath(o.libPath), o.logLevel)
}

// LibPath resolves the library folder.
func LibPath(libPath string) string {
	if libPath != "" {
		return libPath
	}

	if v := os.Getenv("MINICODE_LIB_PATH"); v != "" {
		return v
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".minicode", "libraries")
	}

	return filepath.Join(home, ".minicode", "libraries")
}
