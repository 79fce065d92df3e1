package t31

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClass1ModemTable_knownRatesAgreeWithModeFamily(t *testing.T) {
	cases := map[int]ModemMode{
		24:  ModeV27terTx,
		48:  ModeV27terTx,
		72:  ModeV29Tx,
		96:  ModeV29Tx,
		121: ModeV17Tx,
		146: ModeV17Tx,
	}
	for val, mode := range cases {
		entry, ok := class1ModemTable[val]
		require.True(t, ok, "value %d should be known", val)
		assert.Equal(t, mode, entry.mode)
	}
}

func TestProcessClass1Cmd_silenceReceiveArmsAwaitedSilence(t *testing.T) {
	s, sink := newTestSession(t)
	s.Lock()
	_, err := s.ProcessClass1Cmd(DirReceive, Class1Silence, 1)
	require.NoError(t, err)
	assert.Equal(t, ModeSilenceRx, s.modem)
	assert.Equal(t, AtModeDelivery, s.atRxMode)
	assert.Greater(t, s.silenceAwaited, int64(0))
	s.Unlock()

	sink.mu.Lock()
	assert.NotContains(t, sink.responses, RespOK)
	sink.mu.Unlock()

	s.Lock()
	_, err = s.Rx(make([]int16, 100))
	require.NoError(t, err)
	assert.Zero(t, s.silenceAwaited)
	assert.Equal(t, AtModeOffhookCommand, s.atRxMode)
	s.Unlock()

	sink.mu.Lock()
	assert.Contains(t, sink.responses, RespOK)
	sink.mu.Unlock()
}

func TestProcessClass1Cmd_silenceSendDefersOKUntilGeneratorExhausted(t *testing.T) {
	s, sink := newTestSession(t)
	s.Lock()
	_, err := s.ProcessClass1Cmd(DirSend, Class1Silence, 1)
	require.NoError(t, err)
	assert.Equal(t, ModeSilenceTx, s.modem)
	assert.Equal(t, int64(80), s.silenceTxSamples)
	s.Unlock()

	sink.mu.Lock()
	assert.NotContains(t, sink.responses, RespOK)
	sink.mu.Unlock()

	s.Lock()
	amp := make([]int16, 200)
	_, err = s.Tx(amp, len(amp))
	require.NoError(t, err)
	assert.Zero(t, s.silenceTxSamples)
	s.Unlock()

	sink.mu.Lock()
	assert.Contains(t, sink.responses, RespOK)
	sink.mu.Unlock()
}

func TestProcessClass1Cmd_modulationReceiveEntersDeliveryMode(t *testing.T) {
	s, _ := newTestSession(t)
	s.Lock()
	_, err := s.ProcessClass1Cmd(DirReceive, Class1Modulation, 72)
	require.NoError(t, err)
	assert.Equal(t, AtModeDelivery, s.atRxMode)
	assert.Equal(t, ModeV29Rx, s.modem)
	s.Unlock()
}

func TestRxModeFor(t *testing.T) {
	assert.Equal(t, ModeV21Rx, rxModeFor(ModeV21Tx))
	assert.Equal(t, ModeV27terRx, rxModeFor(ModeV27terTx))
	assert.Equal(t, ModeV29Rx, rxModeFor(ModeV29Tx))
	assert.Equal(t, ModeV17Rx, rxModeFor(ModeV17Tx))
	assert.Equal(t, ModeSilenceRx, rxModeFor(ModeSilenceTx))
}

func TestProcessClass1Cmd_drainsQueuedFrameOnReceiveArm(t *testing.T) {
	s, sink := newTestSession(t)
	s.Lock()
	s.rxQueue.write([]byte{0x01, 0x02})
	_, err := s.ProcessClass1Cmd(DirReceive, Class1HDLC, 3)
	require.NoError(t, err)
	s.Unlock()

	sink.mu.Lock()
	require.Len(t, sink.data, 1)
	sink.mu.Unlock()
}
