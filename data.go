package sqlixx

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

type dataMode uint8

const (
	// dataStatic: the engine borrows the bytes; the caller guarantees they
	// stay valid and unmoved at least until the statement executes.
	dataStatic dataMode = iota
	// dataTransient: the engine copies the bytes during the bind call.
	dataTransient
	// dataOwned: the wrapper exclusively owns the bytes and must invoke its
	// destructor exactly once (itself, or the engine after a consuming bind).
	dataOwned
)

// Data is an ownership-aware view of a byte payload with an encoding tag:
// EncodingNone for blobs, one of the text encodings otherwise. Exactly one
// ownership mode is in effect at a time; a consuming bind of an owned wrapper
// hands the destructor to the engine and reverts the wrapper to an empty
// non-owning state.
type Data struct {
	ptr  unsafe.Pointer
	size uint64
	enc  TextEncoding
	mode dataMode
	free func(unsafe.Pointer)
}

// StaticData wraps b as a borrowed blob view. The caller keeps b alive until
// the statement it is bound to has executed.
func StaticData(b []byte) Data {
	return Data{ptr: sliceDataPtr(b), size: uint64(len(b)), enc: EncodingNone, mode: dataStatic}
}

// TransientData wraps b as a blob the engine copies during the bind call.
func TransientData(b []byte) Data {
	return Data{ptr: sliceDataPtr(b), size: uint64(len(b)), enc: EncodingNone, mode: dataTransient}
}

// StaticText wraps s as a borrowed UTF-8 text view; same validity rule as
// StaticData.
func StaticText(s string) Data {
	return Data{ptr: stringDataPtr(s), size: uint64(len(s)), enc: EncodingUTF8, mode: dataStatic}
}

// TransientText wraps s as UTF-8 text the engine copies during the bind call.
func TransientText(s string) Data {
	return Data{ptr: stringDataPtr(s), size: uint64(len(s)), enc: EncodingUTF8, mode: dataTransient}
}

// OwnedData wraps externally allocated bytes that this wrapper exclusively
// owns. free is invoked exactly once: by Free, or by the engine after the
// wrapper is bound through a consuming bind (Statement.Bind of *Data).
func OwnedData(ptr unsafe.Pointer, size uint64, enc TextEncoding, free func(unsafe.Pointer)) Data {
	return Data{ptr: ptr, size: size, enc: enc, mode: dataOwned, free: free}
}

// ViewData wraps externally managed bytes as a borrowed view with an
// explicit encoding tag.
func ViewData(ptr unsafe.Pointer, size uint64, enc TextEncoding) Data {
	return Data{ptr: ptr, size: size, enc: enc, mode: dataStatic}
}

// Ptr returns the raw pointer to the bytes.
func (d *Data) Ptr() unsafe.Pointer { return d.ptr }

// Size returns the payload size in bytes.
func (d *Data) Size() uint64 { return d.size }

// Encoding returns the encoding tag.
func (d *Data) Encoding() TextEncoding { return d.enc }

// Owned reports whether this wrapper exclusively owns its bytes.
func (d *Data) Owned() bool { return d.mode == dataOwned && d.free != nil }

// Bytes returns a copy of the payload.
func (d *Data) Bytes() []byte {
	return copyCBytes(d.ptr, int(d.size))
}

// Text returns a copy of the payload as a string.
func (d *Data) Text() string {
	return string(d.Bytes())
}

// Release detaches the bytes without destroying them, transferring the
// responsibility for them to the caller. The wrapper reverts to an empty
// non-owning state so a later Free is a no-op and a double-free cannot occur.
func (d *Data) Release() (ptr unsafe.Pointer, size uint64) {
	ptr, size = d.ptr, d.size
	*d = Data{}
	return ptr, size
}

// Free invokes the destructor if this wrapper owns its bytes and resets the
// wrapper to the empty state. Safe to call repeatedly.
func (d *Data) Free() {
	if d.Owned() && d.ptr != nil {
		d.free(d.ptr)
	}
	*d = Data{}
}

// bindData writes the payload into a 1-based parameter slot. With consume
// set, an owned wrapper hands its destructor to the engine: the registry
// below keeps the Go destructor reachable until the engine invokes the C
// trampoline, and the wrapper is cleared whether or not the bind succeeded,
// since the engine runs the destructor even on a failed bind.
func bindData(stmt SqliteStmt, pos int, d *Data, consume bool) error {
	destructor := sqliteStatic
	handedOff := false
	switch {
	case consume && d.Owned() && d.ptr != nil:
		destructor = ownedDestructor()
		pendingFrees.Store(uintptr(d.ptr), d.free)
		handedOff = true
	case d.mode == dataTransient:
		destructor = sqliteTransient
	}

	ptr := d.ptr
	if ptr == nil && d.size == 0 {
		// a nil pointer would bind NULL; empty payloads bind '' and x''
		ptr = unsafe.Pointer(&zeroByte)
		destructor = sqliteStatic
	}
	var code ResultCode
	if d.enc == EncodingNone {
		code = sqlite3_bind_blob64(stmt, pos, ptr, d.size, destructor)
	} else {
		code = sqlite3_bind_text64(stmt, pos, ptr, d.size, destructor, d.enc)
	}
	if handedOff {
		*d = Data{}
	}
	return checkBind(stmt, code)
}

// Destructor handoff plumbing: the engine expects a C function pointer of
// shape void(*)(void*). A single trampoline serves every owned wrapper;
// per-pointer Go destructors wait in pendingFrees until the engine releases
// the payload.
var (
	pendingFrees   sync.Map // uintptr -> func(unsafe.Pointer)
	destructorOnce sync.Once
	destructorPtr  uintptr

	zeroByte byte
)

func ownedDestructor() uintptr {
	destructorOnce.Do(func() {
		destructorPtr = purego.NewCallback(func(p uintptr) uintptr {
			if f, ok := pendingFrees.LoadAndDelete(p); ok {
				f.(func(unsafe.Pointer))(unsafe.Pointer(p))
			}
			return 0
		})
	})
	return destructorPtr
}

func sliceDataPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func stringDataPtr(s string) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.StringData(s))
}
