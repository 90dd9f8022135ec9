//go:build linux && (amd64 || arm64)

package aunit

import (
	"syscall"
	"unsafe"
)

// ioctl performs a raw ioctl syscall against an ALSA device node.
func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}

	return nil
}

// Linux ioctl request encoding.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

// ioc builds an ioctl request code from direction, type, number and size.
func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

// PCM ioctl request codes ('A' is the ALSA PCM ioctl type). Only the subset
// the unit driver needs is defined.
var (
	pcmIoctlHwRefine = ioc(iocRead|iocWrite, 'A', 0x10, unsafe.Sizeof(sndPcmHwParams{}))
	pcmIoctlHwParams = ioc(iocRead|iocWrite, 'A', 0x11, unsafe.Sizeof(sndPcmHwParams{}))
	pcmIoctlSwParams = ioc(iocRead|iocWrite, 'A', 0x13, unsafe.Sizeof(sndPcmSwParams{}))
	pcmIoctlPrepare  = ioc(iocNone, 'A', 0x40, 0)
	pcmIoctlDrop     = ioc(iocNone, 'A', 0x43, 0)
	pcmIoctlWritei   = ioc(iocWrite, 'A', 0x50, unsafe.Sizeof(sndXferi{}))
	pcmIoctlReadi    = ioc(iocRead, 'A', 0x51, unsafe.Sizeof(sndXferi{}))
)

// hwParamsInit widens every mask and interval to the full range, the
// starting point the kernel refines from.
func hwParamsInit(p *sndPcmHwParams) {
	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n] = sndInterval{MinVal: 0, MaxVal: ^uint32(0)}
	}

	for n := range p.Ires {
		p.Ires[n] = sndInterval{MinVal: 0, MaxVal: ^uint32(0)}
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

// hwParamsSetMask restricts a mask parameter to a single bit.
func hwParamsSetMask(p *sndPcmHwParams, param int, bit uint32) {
	if param < hwParamFirstMask || param > hwParamSubformat || bit >= 256 {
		return
	}

	mask := &p.Masks[param-hwParamFirstMask]
	for i := range mask.Bits {
		mask.Bits[i] = 0
	}

	mask.Bits[bit>>5] |= 1 << (bit & 31)
}

// hwParamsSetInt pins an interval parameter to an exact value.
func hwParamsSetInt(p *sndPcmHwParams, param int, val uint32) {
	if param < hwParamFirstInterval || param > hwParamTickTime {
		return
	}

	p.Intervals[param-hwParamFirstInterval] = sndInterval{MinVal: val, MaxVal: val, Flags: sndIntervalInteger}
}

// hwParamsSetMin restricts an interval parameter's lower bound.
func hwParamsSetMin(p *sndPcmHwParams, param int, val uint32) {
	if param < hwParamFirstInterval || param > hwParamTickTime {
		return
	}

	p.Intervals[param-hwParamFirstInterval].MinVal = val
}

// hwParamsGetInt reads back the value the kernel finalized an interval to.
func hwParamsGetInt(p *sndPcmHwParams, param int) uint32 {
	if param < hwParamFirstInterval || param > hwParamTickTime {
		return 0
	}

	return p.Intervals[param-hwParamFirstInterval].MinVal
}

// hwParamsInterval returns the refined range of an interval parameter.
func hwParamsInterval(p *sndPcmHwParams, param int) (min, max uint32) {
	if param < hwParamFirstInterval || param > hwParamTickTime {
		return 0, 0
	}

	iv := p.Intervals[param-hwParamFirstInterval]

	return iv.MinVal, iv.MaxVal
}

// hwParamsMaskTest reports whether a bit is set in a refined mask parameter.
func hwParamsMaskTest(p *sndPcmHwParams, param int, bit uint32) bool {
	if param < hwParamFirstMask || param > hwParamSubformat || bit >= 256 {
		return false
	}

	mask := &p.Masks[param-hwParamFirstMask]

	return mask.Bits[bit>>5]&(1<<(bit&31)) != 0
}
