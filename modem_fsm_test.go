package t31

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDemod is a hand-rolled Demodulator test double: it emits a fixed bit
// sequence on its first Demod call (simulating samples decoded to bits
// across however many real calls a real demodulator would need) and reports
// CarrierPresent according to trained.
type fakeDemod struct {
	bits    []int
	trained bool
	emitted bool
}

func (d *fakeDemod) Demod(amp []int16, putBit func(int)) int {
	if !d.emitted {
		for _, b := range d.bits {
			putBit(b)
		}
		d.emitted = true
	}
	return len(amp)
}

func (d *fakeDemod) CarrierPresent() bool { return d.trained }
func (d *fakeDemod) Reset()               {}

// flagBits is the HDLC flag byte's bit sequence; 0x7E is a palindrome under
// bit reversal, so this same sequence decodes to hdlcFlag regardless of
// which end putV21RaceBit/putRxBit treats as first.
var flagBits = []int{0, 1, 1, 1, 1, 1, 1, 0}

func TestRestartModem_idempotentForSameMode(t *testing.T) {
	s, _ := newTestSession(t)
	s.Lock()
	defer s.Unlock()

	s.restartModem(ModeV21Rx)
	s.hdlcRxLen = 5
	s.restartModem(ModeV21Rx)
	assert.Equal(t, 5, s.hdlcRxLen)
}

func TestRestartModem_resetsStateOnActualModeChange(t *testing.T) {
	s, _ := newTestSession(t)
	s.Lock()
	defer s.Unlock()

	s.restartModem(ModeV21Rx)
	s.hdlcRxLen = 5
	s.restartModem(ModeSilenceRx)
	s.restartModem(ModeV21Rx)
	assert.Equal(t, 0, s.hdlcRxLen)
}

func TestHdlcPutByte_cngDropsToV21RxOnFlagByte(t *testing.T) {
	s, _ := newTestSession(t)
	s.Lock()
	defer s.Unlock()

	s.restartModem(ModeCNG)
	hdlcPutByte(s, hdlcFlag)
	assert.Equal(t, ModeV21Rx, s.modem)
}

func TestHdlcPutByte_noCngDropsOnFlagByteEither(t *testing.T) {
	s, _ := newTestSession(t)
	s.Lock()
	defer s.Unlock()

	s.restartModem(ModeNoCNG)
	hdlcPutByte(s, hdlcFlag)
	assert.Equal(t, ModeV21Rx, s.modem)
}

func TestFastRxHandler_switchesToFastOnlyOnceTrained(t *testing.T) {
	s, _ := newTestSession(t)
	fast := &fakeDemod{trained: true}
	v21 := &fakeDemod{bits: flagBits}

	s.Lock()
	defer s.Unlock()

	s.demodulators = map[ModemMode]Demodulator{ModeV17Rx: fast, ModeV21Rx: v21}
	s.restartModem(ModeV17Rx)
	_, err := s.Rx(make([]int16, 16))
	require.NoError(t, err)

	assert.IsType(t, fastOnlyRxHandler{}, s.rxHandler)
	assert.True(t, s.rxTrained)
	assert.Equal(t, ModeV17Rx, s.modem)
}

func TestFastRxHandler_v21WinsAdaptiveReportsFRH3AndSwitches(t *testing.T) {
	s, sink := newTestSession(t)
	fast := &fakeDemod{}
	v21 := &fakeDemod{bits: flagBits}

	s.Lock()
	s.demodulators = map[ModemMode]Demodulator{ModeV17Rx: fast, ModeV21Rx: v21}
	s.adaptiveReceive = true
	s.restartModem(ModeV17Rx)
	_, err := s.Rx(make([]int16, 16))
	require.NoError(t, err)

	assert.Equal(t, ModeV21Rx, s.modem)
	assert.True(t, s.rxMessageReceived)
	s.Unlock()

	sink.mu.Lock()
	assert.Contains(t, sink.responses, RespFRH3)
	assert.Contains(t, sink.responses, RespConnect)
	sink.mu.Unlock()
}

func TestFastRxHandler_v21WinsNonAdaptiveReportsFCError(t *testing.T) {
	s, sink := newTestSession(t)
	fast := &fakeDemod{}
	v21 := &fakeDemod{bits: flagBits}

	s.Lock()
	s.demodulators = map[ModemMode]Demodulator{ModeV17Rx: fast, ModeV21Rx: v21}
	s.restartModem(ModeV17Rx)
	_, err := s.Rx(make([]int16, 16))
	require.NoError(t, err)

	assert.Equal(t, ModeSilenceTx, s.modem)
	assert.Equal(t, AtModeOffhookCommand, s.atRxMode)
	s.Unlock()

	sink.mu.Lock()
	assert.Contains(t, sink.responses, RespFCError)
	sink.mu.Unlock()
}

func TestFastRxHandler_neitherSideWinsKeepsRacing(t *testing.T) {
	s, _ := newTestSession(t)
	fast := &fakeDemod{}
	v21 := &fakeDemod{}

	s.Lock()
	defer s.Unlock()

	s.demodulators = map[ModemMode]Demodulator{ModeV17Rx: fast, ModeV21Rx: v21}
	s.restartModem(ModeV17Rx)
	_, err := s.Rx(make([]int16, 16))
	require.NoError(t, err)

	assert.IsType(t, fastRxHandler{}, s.rxHandler)
	assert.Equal(t, ModeV17Rx, s.modem)
	assert.False(t, s.rxTrained)
}
