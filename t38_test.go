package t31

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPacket struct {
	isIndicator bool
	ind         Indicator
	dt          DataType
	ft          FieldType
	data        []byte
	count       int
}

func newT38TestSession(t *testing.T) (*Session, *[]capturedPacket) {
	t.Helper()
	sink := &recordingSink{}
	var packets []capturedPacket
	s, err := NewSession(&SessionConfig{
		AtResponseSink:      sink.atResponse,
		AtDataSink:          sink.atData,
		ModemControlHandler: sink.modemControl,
		T38PacketSink: func(_ *Session, isIndicator bool, ind Indicator, dt DataType, ft FieldType, data []byte, count int) error {
			cp := make([]byte, len(data))
			copy(cp, data)
			packets = append(packets, capturedPacket{isIndicator, ind, dt, ft, cp, count})
			return nil
		},
	})
	require.NoError(t, err)
	return s, &packets
}

func TestT38_hdlcEgressSequence(t *testing.T) {
	s, packets := newT38TestSession(t)
	s.Lock()
	_, err := s.ProcessClass1Cmd(DirSend, Class1HDLC, 3)
	require.NoError(t, err)

	frame := []byte{0xFF, 0x03, 0x40}
	s.hdlcTxBuf = [len(s.hdlcTxBuf)]byte{}
	copy(s.hdlcTxBuf[:], frame)
	s.hdlcTxLen = len(frame)
	s.hdlcTxPtr = 0

	for i := 0; i < 10; i++ {
		more, err := s.T38SendTimeout(240)
		require.NoError(t, err)
		if !more {
			break
		}
	}
	s.Unlock()

	var sawPreamble, sawData, sawFCS bool
	for _, p := range *packets {
		switch {
		case p.ind == IndV21Preamble:
			sawPreamble = true
		case p.ft == FieldHdlcData:
			sawData = true
		case p.ft == FieldHdlcFcsOK || p.ft == FieldHdlcFcsBad:
			sawFCS = true
		}
	}
	assert.True(t, sawPreamble)
	assert.True(t, sawData)
	assert.True(t, sawFCS)
}

func TestT38_ingressIndicatorThenHdlcDataDelivers(t *testing.T) {
	s, sink := newTestSession(t)
	s.Lock()
	require.NoError(t, s.ProcessRxIndicator(IndV21Preamble))
	s.dteIsWaiting = true

	payload := []byte{0x01, 0x02, 0x03}
	require.NoError(t, s.ProcessRxData(DataV21, FieldHdlcData, payload))
	require.NoError(t, s.ProcessRxData(DataV21, FieldHdlcFcsOK, nil))
	s.Unlock()

	sink.mu.Lock()
	require.Len(t, sink.data, 1, "expected the frame to be delivered to the DTE")
	assert.Equal(t, []byte{0x01, 0x02, 0x03, dle, etx}, sink.data[0])
	assert.Contains(t, sink.responses, RespOK)
	sink.mu.Unlock()
}

func TestT38_processRxMissingAbandonsFrame(t *testing.T) {
	s, _ := newT38TestSession(t)
	s.Lock()
	s.hdlcRxLen = 5
	require.NoError(t, s.ProcessRxMissing(3, 1))
	assert.Equal(t, 0, s.hdlcRxLen)
	assert.True(t, s.missingData)
	s.Unlock()
}

func TestT38_setConfigTogglesPacingCounts(t *testing.T) {
	s, _ := newT38TestSession(t)
	s.Lock()
	s.SetT38Config(true)
	assert.Equal(t, 0, s.indicatorTxCount)
	assert.Equal(t, 1, s.dataEndTxCount)
	assert.Equal(t, 0, s.msPerTxChunk)
	s.SetT38Config(false)
	assert.Equal(t, 3, s.indicatorTxCount)
	assert.Equal(t, 3, s.dataEndTxCount)
	assert.Equal(t, 30, s.msPerTxChunk)
	s.Unlock()
}

func TestT38_processRxIndicatorIgnoresImmediateDuplicate(t *testing.T) {
	s, _ := newT38TestSession(t)
	s.Lock()
	require.NoError(t, s.ProcessRxIndicator(IndCNG))
	s.rxSignalPresent = false
	require.NoError(t, s.ProcessRxIndicator(IndCNG))
	assert.False(t, s.rxSignalPresent)
	s.Unlock()
}

func TestT38_processRxIndicatorTrainingArmsMidRxTimeout(t *testing.T) {
	s, _ := newT38TestSession(t)
	s.Lock()
	require.NoError(t, s.ProcessRxIndicator(IndV29Training))
	assert.NotZero(t, s.midRxDeadline)
	s.Unlock()
}

func TestT38_processRxIndicatorNoSignalResolvesCarrierDown(t *testing.T) {
	s, sink := newTestSession(t)
	s.Lock()
	s.dteIsWaiting = true
	s.rxMessageReceived = true
	s.rxSignalPresent = true
	require.NoError(t, s.ProcessRxIndicator(IndNoSignal))
	assert.False(t, s.rxSignalPresent)
	assert.False(t, s.dteIsWaiting)
	s.Unlock()

	sink.mu.Lock()
	assert.Contains(t, sink.responses, RespNoCarrier)
	sink.mu.Unlock()
}
