package t31

// Class1Op names which of the three Class 1 primitives (modulation data,
// HDLC, or silence) a command addresses, matching the three AT+Fxx command
// families (+FTM/+FRM, +FTH/+FRH, +FTS/+FRS).
type Class1Op byte

const (
	Class1Modulation Class1Op = 'M'
	Class1HDLC       Class1Op = 'H'
	Class1Silence    Class1Op = 'S'
)

// class1Modem describes one entry of the T.31 modulation code table (Table
// 3 of the recommendation): the numeric value used in +FTM/+FRM commands,
// which ModemMode it selects, and the line bit rate it implies.
type class1Modem struct {
	mode       ModemMode
	bitRate    int
	shortTrain bool
}

var class1ModemTable = map[int]class1Modem{
	24:  {ModeV27terTx, 2400, false},
	48:  {ModeV27terTx, 4800, false},
	72:  {ModeV29Tx, 7200, false},
	96:  {ModeV29Tx, 9600, false},
	73:  {ModeV17Tx, 7200, false},
	74:  {ModeV17Tx, 7200, true},
	97:  {ModeV17Tx, 9600, false},
	98:  {ModeV17Tx, 9600, true},
	121: {ModeV17Tx, 12000, false},
	122: {ModeV17Tx, 12000, true},
	145: {ModeV17Tx, 14400, false},
	146: {ModeV17Tx, 14400, true},
}

func rxModeFor(txMode ModemMode) ModemMode {
	switch txMode {
	case ModeV21Tx:
		return ModeV21Rx
	case ModeV27terTx:
		return ModeV27terRx
	case ModeV29Tx:
		return ModeV29Rx
	case ModeV17Tx:
		return ModeV17Rx
	default:
		return ModeSilenceRx
	}
}

// ProcessClass1Cmd dispatches one class-1 primitive: direction selects
// whether the DTE is about to send (+FTx) or receive (+FRx), op selects
// modulation/HDLC/silence, and val is the command's numeric argument (a
// class1ModemTable key for Modulation, 3 for HDLC, or a duration in units
// of 10ms for Silence). It returns the resolved bit rate (for Modulation/HDLC) or
// the silence duration echoed back (for Silence), and arms whichever
// modem mode and AtRxMode the command implies. The lock must be held.
func (s *Session) ProcessClass1Cmd(direction Direction, op Class1Op, val int) (int, error) {
	s.checkLock()
	if s.closed {
		return 0, ErrSessionClosed
	}

	switch op {
	case Class1Silence:
		return s.class1Silence(direction, val)
	case Class1HDLC:
		return s.class1HDLC(direction, val)
	case Class1Modulation:
		return s.class1Modulation(direction, val)
	default:
		return 0, ErrUnknownClass1Value
	}
}

// ProcessClass1CmdSync is the Sync variant of ProcessClass1Cmd.
func (s *Session) ProcessClass1CmdSync(direction Direction, op Class1Op, val int) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.ProcessClass1Cmd(direction, op, val)
}

// class1Silence handles AT+FTS/AT+FRS. Neither direction responds
// immediately: TX arms a silence generator of the requested duration and
// responds OK once it has actually played out (handleTxUnderrun's
// ModeSilenceTx case, once silenceTxHandler's countdown underflows); RX
// arms a power-threshold predicate (silenceAwaited/silenceHeard) and
// responds OK once that much continuous quiet has actually been heard on
// the line (silenceRxHandler), not after a blind elapsed-time deadline.
func (s *Session) class1Silence(direction Direction, val int) (int, error) {
	if direction == DirSend {
		s.restartModem(ModeSilenceTx)
		s.silenceTxSamples = msToSamples(int64(val) * 10)
	} else {
		s.rxQueue.flush()
		s.silenceAwaited = msToSamples(int64(val) * 10)
		s.atRxMode = AtModeDelivery
		s.restartModem(ModeSilenceRx)
	}
	return val, nil
}

// class1HDLC selects V.21/HDLC at 300 bps: val is only ever 3 in the T.31
// Class 1 'H' command family, unlike 'M' which dispatches through
// class1ModemTable.
func (s *Session) class1HDLC(direction Direction, val int) (int, error) {
	if val != 3 {
		return 0, ErrUnknownClass1Value
	}
	s.bitRate = 300
	s.shortTrain = false

	if direction == DirSend {
		s.atRxMode = AtModeHDLC
		s.hdlcTxLen = 0
		s.hdlcTxPtr = 0
		s.hdlcFinal = false
		s.dteIsWaiting = true
		s.restartModem(ModeV21Tx)
		s.armDteDataTimeout()
		s.respond(RespConnect)
	} else {
		s.atRxMode = AtModeDelivery
		s.rxMessageReceived = false
		s.restartModem(ModeV21Rx)
		s.armMidRxTimeout()
		s.drainQueuedFrame()
	}
	return s.bitRate, nil
}

func (s *Session) class1Modulation(direction Direction, val int) (int, error) {
	entry, known := class1ModemTable[val]
	if !known {
		return 0, ErrUnknownClass1Value
	}
	s.bitRate = entry.bitRate
	s.shortTrain = entry.shortTrain

	if direction == DirSend {
		s.atRxMode = AtModeStuffed
		s.txInBytes = 0
		s.txOutBytes = 0
		s.dataFinal = false
		s.dteIsWaiting = true
		s.restartModem(entry.mode)
		s.armDteDataTimeout()
		s.respond(RespConnect)
	} else {
		s.atRxMode = AtModeDelivery
		s.dteIsWaiting = true
		s.restartModem(rxModeFor(entry.mode))
		s.armMidRxTimeout()
	}
	return entry.bitRate, nil
}

// drainQueuedFrame replays whatever accumulated in the received-frame queue
// while the DTE wasn't listening. Each record is a 1-byte AT response code
// optionally followed by a raw frame payload; a CONNECT-only record is a
// solo announcement that doesn't stop the drain, any other code does (after
// its payload, if any, has been delivered). If the queue runs dry, the
// session falls back to waiting for the next frame to arrive live.
func (s *Session) drainQueuedFrame() {
	for {
		rec, ok := s.rxQueue.read()
		if !ok {
			s.dteIsWaiting = true
			return
		}
		code := ResponseCode(rec[0])
		if len(rec) > 1 {
			if code == RespOK {
				s.respond(RespConnect)
			}
			out := dleStuff(nil, rec[1:])
			out = append(out, dle, etx)
			s.atDataSink(s, out)
			s.metrics.FramesDelivered++
		}
		s.respond(code)
		if code != RespConnect {
			return
		}
	}
}
