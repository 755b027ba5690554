// Runtime resolution of the SQLite shared library.
//
// Unlike bindings that ship the engine alongside the Go code, this package
// wraps whichever SQLite build the host already has: the system library on
// Linux and the BSDs, the OS-provided libsqlite3.dylib on macOS, and
// winsqlite3.dll (shipped with Windows 10+) or a sqlite3.dll on PATH on
// Windows. SQLIXX_LIBRARY_PATH overrides the search with an explicit path.
//
// Loading is lazy and happens at most once per process: every public entry
// point that needs the engine calls Initialize first.
package sqlixx

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	initOnce sync.Once
	initErr  error
)

// Initialize loads the SQLite shared library and registers its entry points.
// It is safe to call from multiple goroutines; only the first call does work.
// Open and the database/sql driver call it implicitly.
func Initialize() error {
	initOnce.Do(func() {
		handle, err := loadEngineLibrary()
		if err != nil {
			initErr = err
			return
		}
		initErr = register_sqlite3(handle)
	})
	return initErr
}

func libraryCandidates() ([]string, error) {
	if p := os.Getenv("SQLIXX_LIBRARY_PATH"); p != "" {
		return []string{p}, nil
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{"libsqlite3.dylib", "/usr/lib/libsqlite3.dylib"}, nil
	case "linux", "freebsd":
		return []string{"libsqlite3.so.0", "libsqlite3.so"}, nil
	case "windows":
		return []string{"winsqlite3.dll", "sqlite3.dll"}, nil
	default:
		return nil, fmt.Errorf("sqlixx: unsupported operating system: %s", runtime.GOOS)
	}
}

func loadEngineLibrary() (uintptr, error) {
	candidates, err := libraryCandidates()
	if err != nil {
		return 0, err
	}
	var firstErr error
	for _, name := range candidates {
		handle, err := dlopenLibrary(name)
		if err == nil {
			return handle, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, fmt.Errorf("sqlixx: unable to load the SQLite library (tried %v): %w", candidates, firstErr)
}

// Config holds process-wide engine configuration applied by Setup.
type Config struct {
	// Logger is an optional callback to receive diagnostic log events from
	// the engine. The message is copied and safe to retain beyond the
	// callback return.
	Logger func(code ResultCode, message string)
}

// engineLogger keeps the installed Go callback reachable for the lifetime of
// the process; the engine holds only the C trampoline pointer.
var engineLogger func(code ResultCode, message string)

// Setup loads the library and installs process-wide configuration. The log
// callback must be installed before the first connection is opened; the
// engine rejects configuration changes while it is in use.
func Setup(config Config) error {
	if err := Initialize(); err != nil {
		return err
	}
	if config.Logger == nil {
		return nil
	}
	engineLogger = config.Logger
	cb := purego.NewCallback(func(pArg uintptr, code int32, msg uintptr) uintptr {
		if engineLogger != nil {
			engineLogger(ResultCode(code), copyCString(unsafe.Pointer(msg)))
		}
		return 0
	})
	if rc := ResultCode(c_sqlite3_config(sqliteConfigLog, cb, 0)); rc != SQLITE_OK {
		return &Error{Code: rc, Message: "cannot install the engine log callback"}
	}
	return nil
}

// Version reports the version string of the loaded engine.
func Version() (string, error) {
	if err := Initialize(); err != nil {
		return "", err
	}
	return sqlite3_libversion(), nil
}
