package t31

import "math"

// sampleRate is the audio sample rate assumed throughout the core, the
// standard 8 kHz PCM convention for fax/modem audio.
const sampleRate = 8000

// msToSamples converts a duration in milliseconds to a sample count at
// sampleRate.
func msToSamples(ms int64) int64 {
	return ms * sampleRate / 1000
}

// samplesToMs converts a sample count at sampleRate to milliseconds.
func samplesToMs(samples int64) int64 {
	return samples * 1000 / sampleRate
}

// powerMeterLevelDbm0 converts a dBm0 threshold into the same linear units
// silenceRxHandler compares each sample's squared level against: a crude
// per-sample check rather than a calibrated power meter, which is out of
// scope here (the DSP layer that
// would feed real audio measurements lives outside this package).
func powerMeterLevelDbm0(dbm0 float64) int64 {
	return int64(math.Pow(10, dbm0/10) * 32768 * 32768)
}
