//go:build linux && (amd64 || arm64)

package aunit

// ALSA kernel ABI structures for the PCM interface, 64-bit layout.
// Field order and padding must match the C definitions exactly.

// uframes mirrors snd_pcm_uframes_t (unsigned long).
type uframes = uint64

// sndMask is a bitmask for mask-type hardware parameters.
type sndMask struct {
	Bits [8]uint32
}

// sndInterval is a value range for interval-type hardware parameters.
type sndInterval struct {
	MinVal uint32
	MaxVal uint32
	Flags  uint32
}

// sndPcmHwParams mirrors struct snd_pcm_hw_params.
type sndPcmHwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask
	Intervals [12]sndInterval
	Ires      [9]sndInterval
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  uframes
	Reserved  [64]byte
}

// sndPcmSwParams mirrors struct snd_pcm_sw_params on 64-bit systems;
// 4 bytes of padding align the uframes fields after SleepMin.
type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	_                [4]byte
	AvailMin         uframes
	XferAlign        uframes
	StartThreshold   uframes
	StopThreshold    uframes
	SilenceThreshold uframes
	SilenceSize      uframes
	Boundary         uframes
	Reserved         [64]byte
}

// sndXferi mirrors struct snd_xferi for interleaved read/write transfers.
type sndXferi struct {
	Result int // ssize_t
	Buf    uintptr
	Frames uframes
}

// Hardware parameter identifiers (SNDRV_PCM_HW_PARAM_*). The first three are
// masks, the rest intervals; array indexes are relative to the group start.
const (
	hwParamAccess     = 0
	hwParamFormat     = 1
	hwParamSubformat  = 2
	hwParamSampleBits = 8
	hwParamChannels   = 10
	hwParamRate       = 11
	hwParamPeriodSize = 13
	hwParamPeriods    = 15
	hwParamTickTime   = 19

	hwParamFirstMask     = hwParamAccess
	hwParamFirstInterval = hwParamSampleBits
)

// Interval flag: value must stay integral.
const sndIntervalInteger = 1 << 2

// Access types (SNDRV_PCM_ACCESS_*); only plain read/write access is used.
const (
	accessRWInterleaved = 3
)

// Sample format codes (SNDRV_PCM_FORMAT_*) the driver can express.
const (
	sndFormatS8      = 0
	sndFormatS16LE   = 2
	sndFormatS32LE   = 10
	sndFormatFloatLE = 14
	sndFormatS243LE  = 32
)
