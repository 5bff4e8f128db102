//go:build darwin && cgo

package vpio

/*
#cgo LDFLAGS: -framework AudioToolbox -framework CoreAudio

#include <AudioToolbox/AudioToolbox.h>
#include <stdint.h>
#include <string.h>

extern OSStatus vpioInputCallback(void *inRefCon,
                                  AudioUnitRenderActionFlags *ioActionFlags,
                                  const AudioTimeStamp *inTimeStamp,
                                  UInt32 inBusNumber,
                                  UInt32 inNumberFrames,
                                  AudioBufferList *ioData);

extern OSStatus vpioRenderCallback(void *inRefCon,
                                   AudioUnitRenderActionFlags *ioActionFlags,
                                   const AudioTimeStamp *inTimeStamp,
                                   UInt32 inBusNumber,
                                   UInt32 inNumberFrames,
                                   AudioBufferList *ioData);

// vpioRenderInput pulls the captured frames out of the unit into dst. The
// AudioBufferList is built here because its flexible array member cannot be
// expressed from Go. Non-static: the callback file declares and calls it.
OSStatus vpioRenderInput(AudioUnit unit,
                         AudioUnitRenderActionFlags *ioActionFlags,
                         const AudioTimeStamp *inTimeStamp,
                         UInt32 inBusNumber,
                         UInt32 inNumberFrames,
                         int16_t *dst) {
	AudioBufferList list;
	list.mNumberBuffers = 1;
	list.mBuffers[0].mNumberChannels = 1;
	list.mBuffers[0].mDataByteSize = inNumberFrames * sizeof(int16_t);
	list.mBuffers[0].mData = dst;
	return AudioUnitRender(unit, ioActionFlags, (AudioTimeStamp *)inTimeStamp,
	                       inBusNumber, inNumberFrames, &list);
}

// Callback struct construction happens in C because cgo cannot take the
// address of an exported Go function as a C function pointer directly.
static AURenderCallbackStruct vpioMakeInputCB(void *refCon) {
	AURenderCallbackStruct cb = { vpioInputCallback, refCon };
	return cb;
}

static AURenderCallbackStruct vpioMakeRenderCB(void *refCon) {
	AURenderCallbackStruct cb = { vpioRenderCallback, refCon };
	return cb;
}

void vpioFillOutput(AudioBufferList *ioData, int16_t *src, UInt32 inNumberFrames) {
	UInt32 bytes = inNumberFrames * sizeof(int16_t);
	if (ioData->mBuffers[0].mDataByteSize < bytes) {
		bytes = ioData->mBuffers[0].mDataByteSize;
	}
	memcpy(ioData->mBuffers[0].mData, src, bytes);
}
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// Bus assignments on the VoiceProcessingIO unit: element 1 is the
// microphone side, element 0 the speaker side.
const (
	inputBus  = 1
	outputBus = 0
)

// coreAudioUnit drives a CoreAudio AUGraph holding a single
// VoiceProcessingIO node. The platform invokes the input and render
// callbacks on its own real-time thread; this code hands it a cgo.Handle as
// the callback refCon so the Go object stays reachable for as long as the
// callbacks are registered.
type coreAudioUnit struct {
	graph  C.AUGraph
	unit   C.AudioUnit
	cfg    UnitConfig
	handle cgo.Handle
}

func newPlatformUnit() Unit {
	return &coreAudioUnit{}
}

// osStatus converts a platform status into a *StatusError, or nil on
// success.
func osStatus(op string, status C.OSStatus) error {
	if status == C.noErr {
		return nil
	}
	return &StatusError{Op: op, Status: int32(status)}
}

// Start builds the processing graph: create it, add the voice-processing
// node, open the graph, fetch the unit, enable the input bus and
// (conditionally) the output bus, apply the stream format to both scopes,
// install the callbacks, set the bypass property, then initialize and start
// everything. The first non-success status aborts the sequence.
func (u *coreAudioUnit) Start(cfg UnitConfig) error {
	u.cfg = cfg
	u.handle = cgo.NewHandle(u)

	if err := osStatus("NewAUGraph", C.NewAUGraph(&u.graph)); err != nil {
		u.handle.Delete()
		return err
	}

	desc := C.AudioComponentDescription{
		componentType:         C.kAudioUnitType_Output,
		componentSubType:      C.kAudioUnitSubType_VoiceProcessingIO,
		componentManufacturer: C.kAudioUnitManufacturer_Apple,
	}

	var node C.AUNode
	if err := osStatus("AUGraphAddNode", C.AUGraphAddNode(u.graph, &desc, &node)); err != nil {
		u.handle.Delete()
		return err
	}
	if err := osStatus("AUGraphOpen", C.AUGraphOpen(u.graph)); err != nil {
		u.handle.Delete()
		return err
	}
	if err := osStatus("AUGraphNodeInfo", C.AUGraphNodeInfo(u.graph, node, nil, &u.unit)); err != nil {
		u.handle.Delete()
		return err
	}

	enable := C.UInt32(1)
	if err := osStatus("AudioUnitSetProperty(EnableIO input)",
		C.AudioUnitSetProperty(u.unit, C.kAudioOutputUnitProperty_EnableIO,
			C.kAudioUnitScope_Input, inputBus,
			unsafe.Pointer(&enable), C.UInt32(unsafe.Sizeof(enable)))); err != nil {
		u.handle.Delete()
		return err
	}

	output := C.UInt32(0)
	if cfg.Render != nil {
		output = 1
	}
	if err := osStatus("AudioUnitSetProperty(EnableIO output)",
		C.AudioUnitSetProperty(u.unit, C.kAudioOutputUnitProperty_EnableIO,
			C.kAudioUnitScope_Output, outputBus,
			unsafe.Pointer(&output), C.UInt32(unsafe.Sizeof(output)))); err != nil {
		u.handle.Delete()
		return err
	}

	format := streamDescription(cfg.Format)
	if err := osStatus("AudioUnitSetProperty(StreamFormat output scope)",
		C.AudioUnitSetProperty(u.unit, C.kAudioUnitProperty_StreamFormat,
			C.kAudioUnitScope_Output, inputBus,
			unsafe.Pointer(&format), C.UInt32(unsafe.Sizeof(format)))); err != nil {
		u.handle.Delete()
		return err
	}
	if err := osStatus("AudioUnitSetProperty(StreamFormat input scope)",
		C.AudioUnitSetProperty(u.unit, C.kAudioUnitProperty_StreamFormat,
			C.kAudioUnitScope_Input, outputBus,
			unsafe.Pointer(&format), C.UInt32(unsafe.Sizeof(format)))); err != nil {
		u.handle.Delete()
		return err
	}

	inputCB := C.vpioMakeInputCB(unsafe.Pointer(uintptr(u.handle)))
	if err := osStatus("AudioUnitSetProperty(SetInputCallback)",
		C.AudioUnitSetProperty(u.unit, C.kAudioOutputUnitProperty_SetInputCallback,
			C.kAudioUnitScope_Global, inputBus,
			unsafe.Pointer(&inputCB), C.UInt32(unsafe.Sizeof(inputCB)))); err != nil {
		u.handle.Delete()
		return err
	}

	if cfg.Render != nil {
		renderCB := C.vpioMakeRenderCB(unsafe.Pointer(uintptr(u.handle)))
		if err := osStatus("AudioUnitSetProperty(SetRenderCallback)",
			C.AudioUnitSetProperty(u.unit, C.kAudioUnitProperty_SetRenderCallback,
				C.kAudioUnitScope_Input, outputBus,
				unsafe.Pointer(&renderCB), C.UInt32(unsafe.Sizeof(renderCB)))); err != nil {
			u.handle.Delete()
			return err
		}
	}

	bypass := C.UInt32(cfg.Bypass)
	if err := osStatus("AudioUnitSetProperty(BypassVoiceProcessing)",
		C.AudioUnitSetProperty(u.unit, C.kAUVoiceIOProperty_BypassVoiceProcessing,
			C.kAudioUnitScope_Global, inputBus,
			unsafe.Pointer(&bypass), C.UInt32(unsafe.Sizeof(bypass)))); err != nil {
		u.handle.Delete()
		return err
	}

	if err := osStatus("AUGraphInitialize", C.AUGraphInitialize(u.graph)); err != nil {
		u.handle.Delete()
		return err
	}
	if err := osStatus("AUGraphStart", C.AUGraphStart(u.graph)); err != nil {
		u.handle.Delete()
		return err
	}
	if err := osStatus("AudioOutputUnitStart", C.AudioOutputUnitStart(u.unit)); err != nil {
		u.handle.Delete()
		return err
	}
	return nil
}

// Stop tears the graph down in three stages. The first failing status is
// returned and the later stages never run; the platform reclaims whatever
// it can on its own in that case.
func (u *coreAudioUnit) Stop() error {
	if err := osStatus("AUGraphStop", C.AUGraphStop(u.graph)); err != nil {
		return err
	}
	if err := osStatus("AudioUnitUninitialize", C.AudioUnitUninitialize(u.unit)); err != nil {
		return err
	}
	if err := osStatus("DisposeAUGraph", C.DisposeAUGraph(u.graph)); err != nil {
		return err
	}
	u.handle.Delete()
	return nil
}

// streamDescription builds the CoreAudio descriptor for the fixed mono
// 16-bit packed signed-integer linear PCM format.
func streamDescription(f Format) C.AudioStreamBasicDescription {
	bytesPerFrame := C.UInt32(f.BytesPerFrame())
	return C.AudioStreamBasicDescription{
		mSampleRate:       C.Float64(f.SampleRate),
		mFormatID:         C.kAudioFormatLinearPCM,
		mFormatFlags:      C.kAudioFormatFlagIsSignedInteger | C.kAudioFormatFlagIsPacked,
		mBytesPerPacket:   bytesPerFrame,
		mFramesPerPacket:  C.UInt32(f.FramesPerPacket),
		mBytesPerFrame:    bytesPerFrame,
		mChannelsPerFrame: C.UInt32(f.Channels),
		mBitsPerChannel:   C.UInt32(f.BitsPerSample),
	}
}

