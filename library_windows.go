//go:build windows

package sqlixx

import "golang.org/x/sys/windows"

func dlopenLibrary(name string) (uintptr, error) {
	handle, err := windows.LoadLibrary(name)
	if err != nil {
		return 0, err
	}
	return uintptr(handle), nil
}
