// Package t31 implements the core of a T.31 Class 1 fax modem emulator: the
// state machines that sit between a DLE-stuffed DTE byte stream and a fax
// transport, audio (V.21/V.27ter/V.29/V.17 over 8 kHz PCM) or T.38 (IFP over
// a packet transport).
//
// The AT command interpreter, the DSP modem primitives, the T.38
// packetization layer, and T.30 session logic are all out of scope: this
// package calls out to them through a handful of narrow seams
// (ClassOneCommandHook-adjacent dispatch, ModemControlHandler,
// AtResponseSink, T38PacketSink) and expects to be driven by them in turn.
//
// A Session is a single mutex-guarded struct with lock-required methods
// and *Sync convenience wrappers that acquire the lock automatically.
package t31

import (
	"sync"

	"github.com/charmbracelet/log"
)

// ModemMode selects which of the logical modem behaviors is currently
// driving the audio-mode TX/RX handler pair.
type ModemMode int

// ModeUnset is the sentinel "no modem selected yet" value used before the
// first restartModem call.
const ModeUnset ModemMode = -1

const (
	ModeFlush ModemMode = iota
	ModeSilenceTx
	ModeSilenceRx
	ModeCED
	ModeCNG
	ModeNoCNG
	ModeV21Tx
	ModeV17Tx
	ModeV27terTx
	ModeV29Tx
	ModeV21Rx
	ModeV17Rx
	ModeV27terRx
	ModeV29Rx
)

func (m ModemMode) String() string {
	switch m {
	case ModeUnset:
		return "Unset"
	case ModeFlush:
		return "Flush"
	case ModeSilenceTx:
		return "SilenceTx"
	case ModeSilenceRx:
		return "SilenceRx"
	case ModeCED:
		return "CED"
	case ModeCNG:
		return "CNG"
	case ModeNoCNG:
		return "NoCNG"
	case ModeV21Tx:
		return "V21Tx"
	case ModeV17Tx:
		return "V17Tx"
	case ModeV27terTx:
		return "V27terTx"
	case ModeV29Tx:
		return "V29Tx"
	case ModeV21Rx:
		return "V21Rx"
	case ModeV17Rx:
		return "V17Rx"
	case ModeV27terRx:
		return "V27terRx"
	case ModeV29Rx:
		return "V29Rx"
	default:
		return "Unknown"
	}
}

// AtRxMode is the DTE-facing session mode: it governs how bytes arriving
// from AtRx are interpreted.
type AtRxMode int

const (
	AtModeOnhookCommand AtRxMode = iota
	AtModeOffhookCommand
	AtModeHDLC
	AtModeStuffed
	AtModeDelivery
)

func (m AtRxMode) String() string {
	switch m {
	case AtModeOnhookCommand:
		return "OnhookCommand"
	case AtModeOffhookCommand:
		return "OffhookCommand"
	case AtModeHDLC:
		return "HDLC"
	case AtModeStuffed:
		return "Stuffed"
	case AtModeDelivery:
		return "Delivery"
	default:
		return "Unknown"
	}
}

// ResponseCode is an AT result code emitted to the DTE via AtResponseSink.
type ResponseCode int

const (
	RespOK ResponseCode = iota
	RespError
	RespConnect
	RespNoCarrier
	RespFCError
	RespFRH3
)

func (r ResponseCode) String() string {
	switch r {
	case RespOK:
		return "OK"
	case RespError:
		return "ERROR"
	case RespConnect:
		return "CONNECT"
	case RespNoCarrier:
		return "NO CARRIER"
	case RespFCError:
		return "+FCERROR"
	case RespFRH3:
		return "+FRH:3"
	default:
		return "UNKNOWN"
	}
}

// CallEvent notifies the session of an off-core call-control event.
type CallEvent int

const (
	CallEventRing CallEvent = iota
	CallEventAnswer
	CallEventCall
	CallEventHangup
)

// Direction distinguishes the DTE sending data (send) from the DTE awaiting
// received data (receive), as passed to ProcessClass1Cmd.
type Direction int

const (
	DirReceive Direction = iota
	DirSend
)

// ModemControlOp is passed to ModemControlHandler for the externally
// meaningful control signals the core cannot act on itself: CTS flow
// control toward the DTE, and a request to physically hang up the line.
type ModemControlOp int

const (
	ModemControlCTS ModemControlOp = iota
	ModemControlHangup
)

// AtResponseSink delivers a single AT result code to the DTE side. It is
// called in emission order from within whichever entry point (Rx, Tx, AtRx,
// the T.38 ingress callbacks, T38SendTimeout) triggered it.
type AtResponseSink func(s *Session, code ResponseCode)

// AtDataSink delivers raw (already DLE-stuffed where required) bytes to the
// DTE.
type AtDataSink func(s *Session, data []byte)

// ModemControlHandler receives control signals the core itself cannot
// service: CTS toggling and hangup requests.
type ModemControlHandler func(s *Session, op ModemControlOp, arg int)

const txBufLen = 4096
const hdlcRxBufMax = 256 - 2 // two FCS bytes are read past the end

// Metrics holds cumulative counters safe to read with MetricsSync.
type Metrics struct {
	Samples         int64
	CallSamples     int64
	FramesDelivered int
	FramesQueued    int
	CRCErrors       int
	IFPPacketsSent  int
	IFPPacketsRecv  int
	TxBytesToDTE    int64
	RxBytesFromDTE  int64
}

// SessionConfig carries the required and optional parameters for NewSession.
type SessionConfig struct {
	// AtResponseSink receives AT result codes. Required.
	AtResponseSink AtResponseSink
	// AtDataSink receives raw bytes destined for the DTE (HDLC frames,
	// non-ECM data doubled for DLE). Required.
	AtDataSink AtDataSink
	// ModemControlHandler receives CTS/hangup signals. Required.
	ModemControlHandler ModemControlHandler
	// T38PacketSink, if set, puts the session into T.38 mode and receives
	// outbound IFP packets.
	T38PacketSink T38PacketSink
	// Demodulators and Modulators supply the actual V.21/V.27ter/V.29/V.17
	// waveform encode/decode for audio mode, keyed by the ModemMode each
	// handles. This package only manages which one is active and feeds it
	// samples; it does not implement fax modem DSP itself. Unused in pure
	// T.38 sessions.
	Demodulators map[ModemMode]Demodulator
	Modulators   map[ModemMode]Modulator
	// Logger, if nil, defaults to a discard logger.
	Logger *log.Logger
	// AdaptiveReceive sets the +FAR behavior: tolerate a carrier mismatch
	// during dual-rail receive instead of reporting it as an error.
	AdaptiveReceive bool
	// AnswerTimeoutSeconds is the S7 equivalent: seconds after off-hook
	// before NO CARRIER is declared if CNG finds no preamble.
	AnswerTimeoutSeconds int
}

// Session owns all T.31 core state. It is driven by five reentrancy-disjoint
// entry points (Rx, Tx, AtRx, the T.38 ingress callbacks, T38SendTimeout);
// the contract is that exactly one of these runs at a time, enforced here by
// a mutex rather than relied upon structurally.
type Session struct {
	sync.Mutex

	closed bool
	logger *log.Logger

	// --- modem selection ---
	modem      ModemMode
	bitRate    int
	shortTrain bool

	// --- dte session ---
	atRxMode        AtRxMode
	dteIsWaiting    bool
	okIsPending     bool // deferred OK withheld until carrier drop, for the last frame of a batch
	rxSignalPresent bool
	rxTrained       bool
	dataFinal       bool
	doHangup        bool

	// --- transmit byte buffer ---
	txData      [txBufLen]byte
	txInBytes   int
	txOutBytes  int
	txHolding   bool
	currentByte byte
	bitNo       int

	// --- DLE codec state ---
	dled bool

	// --- hdlc tx buffer ---
	hdlcTxBuf [hdlcRxBufMax + 2]byte
	hdlcTxPtr int
	hdlcTxLen int
	hdlcFinal bool

	// --- hdlc rx buffer ---
	hdlcRxBuf   [256]byte
	hdlcRxLen   int
	missingData bool
	// rxMessageReceived tracks whether CONNECT has been announced (sent or
	// queued) for the current receive. It is cleared when a new receive is
	// armed and after a directly delivered frame's result code is sent. It
	// gates CONNECT-on-first-frame and the carrier-down OK/NO CARRIER
	// resolution in handleCarrierDown.
	rxMessageReceived bool

	// --- rx data accumulation toward the DTE ---
	rxData      [2048]byte
	rxDataBytes int

	// --- dual-rail receive ---
	rxHandler     rxHandler
	txHandler     txHandler
	nextTxHandler txHandler
	// rxBitSink receives completed bytes assembled by putRxBit; restartModem
	// points it at hdlcPutByte for HDLC-carrying modes (V21Rx, CNG, NoCNG)
	// or nonEcmPutByte for the fast demodulators. The V.21 side of a
	// dual-rail race bypasses it through putV21RaceBit.
	rxBitSink func(s *Session, b byte)

	// v21RaceByte/v21RaceBitNo accumulate bits off the V.21 demodulator
	// during a dual-rail fast receive, independently of currentByte/bitNo
	// which the fast demodulator's own putRxBit is using.
	v21RaceByte  byte
	v21RaceBitNo int

	// --- clocks ---
	samples          int64
	callSamples      int64
	dteDataDeadline  int64 // 0 = disarmed; fires ErrDTETimeout
	midRxDeadline    int64 // 0 = disarmed; fires ErrMidReceiveTimeout
	silenceHeard     int64
	silenceThreshold int64
	silenceAwaited   int64 // AT+FRS: OK fires once silenceHeard reaches this, 0 = disarmed
	silenceTxSamples int64 // AT+FTS: remaining samples before the silence generator underflows, 0 = unbounded (idle SILENCE_TX)

	// --- t38 ---
	t38Mode             bool
	timedStep           timedStep
	indicatorTxCount    int
	dataEndTxCount      int
	msPerTxChunk        int
	octetsPerDataPacket int
	useTep              bool
	currentRxIndicator  Indicator
	trailerBytes        int // remaining zero-padding for the non-ECM trailer, T38_TIMED_STEP_NON_ECM_MODEM_4

	// --- received frame queue ---
	rxQueue *frameQueue

	// --- handlers borrowed for the session's lifetime ---
	atResponseSink      AtResponseSink
	atDataSink          AtDataSink
	modemControlHandler ModemControlHandler
	t38PacketSink       T38PacketSink
	demodulators        map[ModemMode]Demodulator
	modulators          map[ModemMode]Modulator

	adaptiveReceive bool
	answerTimeout   int64 // samples

	transmitOnIdle bool

	metrics Metrics
}

// NewSession creates a new T.31 session. AtResponseSink, AtDataSink, and
// ModemControlHandler are required; T38PacketSink is optional and, when
// set, enables T.38 mode semantics for restartModem and T38SendTimeout.
func NewSession(config *SessionConfig) (*Session, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.AtResponseSink == nil || config.AtDataSink == nil || config.ModemControlHandler == nil {
		return nil, ErrConfigRequired
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(discardWriter{})
	}

	s := &Session{
		modem:               ModeUnset,
		atRxMode:            AtModeOnhookCommand,
		rxHandler:           dummyRxHandler{},
		txHandler:           nil,
		rxQueue:             newFrameQueue(),
		atResponseSink:      config.AtResponseSink,
		atDataSink:          config.AtDataSink,
		modemControlHandler: config.ModemControlHandler,
		t38PacketSink:       config.T38PacketSink,
		adaptiveReceive:     config.AdaptiveReceive,
		logger:              logger,
		currentByte:         0xFF,
		silenceThreshold:    powerMeterLevelDbm0(-36),
		demodulators:        config.Demodulators,
		modulators:          config.Modulators,
		currentRxIndicator:  -1, // no indicator received yet
	}
	s.answerTimeoutSamples(config.AnswerTimeoutSeconds)
	s.setT38Config(false)
	return s, nil
}

func (s *Session) answerTimeoutSamples(seconds int) {
	if seconds <= 0 {
		seconds = 60
	}
	s.answerTimeout = msToSamples(int64(seconds) * 1000)
}

// dteDataTimeoutMs is the inactivity window allowed on the DTE side while a
// Class 1 HDLC or stuffed-data send is in progress: if no further bytes
// arrive within this window, the transfer is aborted.
const dteDataTimeoutMs = 5000

// midRxTimeoutMs is how long a fax-side receive may go without a complete
// HDLC frame or non-ECM byte before it is considered stalled.
const midRxTimeoutMs = 15000

func (s *Session) armDteDataTimeout() {
	s.dteDataDeadline = s.callSamples + msToSamples(dteDataTimeoutMs)
}

func (s *Session) armMidRxTimeout() {
	s.midRxDeadline = s.callSamples + msToSamples(midRxTimeoutMs)
}

// checkLock panics if the session's mutex is not held by the caller.
func (s *Session) checkLock() {
	if s.TryLock() {
		s.Unlock()
		panic("t31: session lock not held")
	}
}

// Release tears down the session. The lock must be held.
func (s *Session) Release() {
	s.checkLock()
	s.closed = true
}

// ReleaseSync releases the session with automatic lock management.
func (s *Session) ReleaseSync() {
	s.Lock()
	defer s.Unlock()
	s.Release()
}

// Metrics returns a copy of the session's current counters. The lock must
// be held.
func (s *Session) Metrics() Metrics {
	s.checkLock()
	return s.metrics
}

// MetricsSync returns a copy of the session's current counters with
// automatic lock management.
func (s *Session) MetricsSync() Metrics {
	s.Lock()
	defer s.Unlock()
	return s.Metrics()
}

// SetTransmitOnIdle controls whether Tx produces zero samples while the
// line is idle (ModeSilenceTx with no AT+FTS countdown armed). When it is
// off, Tx returns 0 samples in that state.
func (s *Session) SetTransmitOnIdle(v bool) {
	s.checkLock()
	s.transmitOnIdle = v
}

// SetTransmitOnIdleSync is the Sync variant of SetTransmitOnIdle.
func (s *Session) SetTransmitOnIdleSync(v bool) {
	s.Lock()
	defer s.Unlock()
	s.SetTransmitOnIdle(v)
}

// SetTepMode controls whether T.38 training-time lookups use the
// Training-Extension-Packet figures.
func (s *Session) SetTepMode(v bool) {
	s.checkLock()
	s.useTep = v
}

// SetTepModeSync is the Sync variant of SetTepMode.
func (s *Session) SetTepModeSync(v bool) {
	s.Lock()
	defer s.Unlock()
	s.SetTepMode(v)
}

// CallEvent notifies the session of a call-control event. Answer/call
// events reset call_samples, mirroring AT_MODEM_CONTROL_ANSWER/CALL in the
// original; ring is only logged; hangup runs on-hook cleanup.
func (s *Session) CallEvent(event CallEvent) {
	s.checkLock()
	s.logger.Debug("call event", "event", event, "modem", s.modem)
	switch event {
	case CallEventAnswer, CallEventCall:
		s.callSamples = 0
	case CallEventHangup:
		s.onHook()
	}
}

// CallEventSync is the Sync variant of CallEvent.
func (s *Session) CallEventSync(event CallEvent) {
	s.Lock()
	defer s.Unlock()
	s.CallEvent(event)
}

func (s *Session) onHook() {
	if s.txHolding {
		s.txHolding = false
		s.modemControlHandler(s, ModemControlCTS, 1)
	}
	if s.rxSignalPresent {
		s.emitDleEtxToDTE()
	}
	s.restartModem(ModeSilenceTx)
}

// emitDleEtxToDTE flushes any accumulated rxData, appends DLE-ETX, and
// sends it to the DTE in one call, terminating whatever frame was still in
// flight.
func (s *Session) emitDleEtxToDTE() {
	s.rxData[s.rxDataBytes] = dle
	s.rxDataBytes++
	s.rxData[s.rxDataBytes] = etx
	s.rxDataBytes++
	s.flushRxData()
}

func (s *Session) flushRxData() {
	if s.rxDataBytes == 0 {
		return
	}
	s.atDataSink(s, s.rxData[:s.rxDataBytes])
	s.metrics.TxBytesToDTE += int64(s.rxDataBytes)
	s.rxDataBytes = 0
}

func (s *Session) respond(code ResponseCode) {
	s.atResponseSink(s, code)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
