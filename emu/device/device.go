/*
rv64sim RISC-V MMIO device interface.

	Copyright (c) 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a
	copy of this software and associated documentation files (the "Software"),
	to deal in the Software without restriction, including without limitation
	the rights to use, copy, modify, merge, publish, distribute, sublicense,
	and/or sell copies of the Software, and to permit persons to whom the
	Software is furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
	RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
	IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
	CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/
package device

import "fmt"

// Device is implemented by each MMIO peripheral (CLINT, PLIC, HTIF).
// Unlike the channel-attached unit-record devices this interface is
// descended from, there is no StartIO/command-chain protocol: a
// RISC-V MMIO device is just a byte range a hart can load and store
// through.
type Device interface {
	Name() string                                    // Device name, as given to RegisterDevice.
	Base() uint64                                     // First byte of the device's MMIO window.
	Size() uint64                                     // Length of the MMIO window in bytes.
	Load(addr uint64, width int) (uint64, bool)       // Read width bytes at offset addr within the window; false if not accepted.
	Store(addr uint64, width int, value uint64) bool  // Write width bytes at offset addr within the window; false if not accepted.
	Reset()                                           // Return the device to its power-on state.
	Shutdown()                                        // Close any open files, stop any goroutines.
	Debug(debug string) error                         // Enable a debug option.
}

// Access widths, in bytes, a device may report in its accepted-width mask.
const (
	Width1 int = 1 << iota
	Width2
	Width4
	Width8
)

var registry = map[string]Device{}

// RegisterDevice records a constructed device under its name so later
// config lines (DEBUG CLINT ...) and the memory map can find it.
func RegisterDevice(dev Device) error {
	name := dev.Name()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("device %s already registered", name)
	}
	registry[name] = dev
	return nil
}

// Lookup returns the device registered under name.
func Lookup(name string) (Device, error) {
	dev, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("device %s doesn't exist", name)
	}
	return dev, nil
}

// Devices returns every registered device, for shutdown and checkpoint walks.
func Devices() []Device {
	out := make([]Device, 0, len(registry))
	for _, dev := range registry {
		out = append(out, dev)
	}
	return out
}

// Reset clears the registry. Used between test cases and before a
// fresh machine is built from a new config file.
func Reset() {
	registry = map[string]Device{}
}
