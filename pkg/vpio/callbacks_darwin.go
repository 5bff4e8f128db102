//go:build darwin && cgo

package vpio

/*
#include <AudioToolbox/AudioToolbox.h>
#include <stdint.h>

// Defined in the unit file's preamble; a file with exported Go functions may
// only declare C symbols here.
OSStatus vpioRenderInput(AudioUnit unit,
                         AudioUnitRenderActionFlags *ioActionFlags,
                         const AudioTimeStamp *inTimeStamp,
                         UInt32 inBusNumber,
                         UInt32 inNumberFrames,
                         int16_t *dst);

void vpioFillOutput(AudioBufferList *ioData, int16_t *src, UInt32 inNumberFrames);
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// vpioInputCallback runs on the platform audio thread for every captured
// packet. It renders the input bus into pooled scratch space, copies the
// samples into a fresh slice the handler may retain, and hands them off.
//
//export vpioInputCallback
func vpioInputCallback(inRefCon unsafe.Pointer,
	ioActionFlags *C.AudioUnitRenderActionFlags,
	inTimeStamp *C.AudioTimeStamp,
	inBusNumber C.UInt32,
	inNumberFrames C.UInt32,
	_ *C.AudioBufferList) C.OSStatus {

	u := cgo.Handle(uintptr(inRefCon)).Value().(*coreAudioUnit)

	n := int(inNumberFrames)
	if n == 0 {
		return C.noErr
	}
	scratch := defaultFramePool.get(n)
	status := C.vpioRenderInput(u.unit, ioActionFlags, inTimeStamp,
		inBusNumber, inNumberFrames, (*C.int16_t)(unsafe.Pointer(&scratch[0])))
	if status != C.noErr {
		defaultFramePool.put(scratch)
		return status
	}

	samples := make([]int16, n)
	copy(samples, scratch)
	defaultFramePool.put(scratch)

	u.cfg.OnInput(samples)
	return C.noErr
}

// vpioRenderCallback fills the output bus from the configured render source.
//
//export vpioRenderCallback
func vpioRenderCallback(inRefCon unsafe.Pointer,
	_ *C.AudioUnitRenderActionFlags,
	_ *C.AudioTimeStamp,
	_ C.UInt32,
	inNumberFrames C.UInt32,
	ioData *C.AudioBufferList) C.OSStatus {

	u := cgo.Handle(uintptr(inRefCon)).Value().(*coreAudioUnit)
	if u.cfg.Render == nil {
		// Rejected at configuration time; leave silence if it happens.
		return C.noErr
	}

	n := int(inNumberFrames)
	if n == 0 {
		return C.noErr
	}
	out := defaultFramePool.get(n)
	u.cfg.Render(out)
	C.vpioFillOutput(ioData, (*C.int16_t)(unsafe.Pointer(&out[0])), inNumberFrames)
	defaultFramePool.put(out)
	return C.noErr
}
