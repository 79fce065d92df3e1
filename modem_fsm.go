package t31

// restartModem switches the active modem mode: it tears down whatever
// rx/tx handler pair was running, resets the relevant demodulator or
// modulator, and wires up the new pair. It is idempotent: a call naming
// the mode already active is a no-op, so re-arming a receive (e.g.
// class1HDLC's +FRH=3 branch running again while already in ModeV21Rx)
// never discards an in-flight HDLC sync or partial frame. The lock must
// be held.
func (s *Session) restartModem(mode ModemMode) {
	if mode == s.modem {
		return
	}
	s.logger.Debug("restart modem", "from", s.modem, "to", mode)
	s.modem = mode
	s.bitNo = 0
	s.currentByte = 0

	switch mode {
	case ModeFlush:
		s.restartModem(ModeSilenceTx)
		s.silenceTxSamples = msToSamples(200)
		return

	case ModeSilenceTx:
		s.rxHandler = dummyRxHandler{}
		s.txHandler = silenceTxHandler{}
		s.rxBitSink = nil

	case ModeSilenceRx:
		s.rxHandler = silenceRxHandler{}
		s.txHandler = silenceTxHandler{}
		s.rxBitSink = nil

	case ModeCED:
		s.rxHandler = dummyRxHandler{}
		s.txHandler = cedTxHandler{}
		s.rxBitSink = nil

	case ModeCNG:
		s.rxHandler = v21RxHandler{}
		s.txHandler = cngTxHandler{}
		s.rxBitSink = hdlcPutByte
		s.resetDemod(ModeV21Rx)

	case ModeNoCNG:
		s.rxHandler = v21RxHandler{}
		s.txHandler = silenceTxHandler{}
		s.rxBitSink = hdlcPutByte
		s.resetDemod(ModeV21Rx)

	case ModeV21Tx:
		s.rxHandler = dummyRxHandler{}
		s.txHandler = hdlcTxHandler{}
		s.resetMod(ModeV21Tx)
		s.hdlcTxPtr = 0
		s.hdlcTxLen = 0

	case ModeV21Rx:
		s.rxHandler = v21RxHandler{}
		s.txHandler = silenceTxHandler{}
		s.rxBitSink = hdlcPutByte
		s.resetDemod(ModeV21Rx)
		s.hdlcRxLen = 0
		s.rxMessageReceived = false

	case ModeV17Tx, ModeV27terTx, ModeV29Tx:
		s.rxHandler = dummyRxHandler{}
		s.txHandler = nonEcmTxHandler{mode: mode}
		s.resetMod(mode)
		s.txOutBytes = 0

	case ModeV17Rx, ModeV27terRx, ModeV29Rx:
		// Dual-rail: race the fast demodulator against V.21, since a DCN
		// or a retrain request can arrive on the V.21 channel before the
		// fast modem has trained.
		s.rxHandler = fastRxHandler{mode: mode}
		s.txHandler = silenceTxHandler{}
		s.rxBitSink = nonEcmPutByte
		s.resetDemod(mode)
		s.resetDemod(ModeV21Rx)
		s.rxDataBytes = 0
		s.v21RaceBitNo = 0
		s.v21RaceByte = 0
	}
}

// restartModemSync is the Sync variant of restartModem.
func (s *Session) restartModemSync(mode ModemMode) {
	s.Lock()
	defer s.Unlock()
	s.restartModem(mode)
}

func (s *Session) resetDemod(mode ModemMode) {
	if d, ok := s.demodulators[mode]; ok && d != nil {
		d.Reset()
	}
}

func (s *Session) resetMod(mode ModemMode) {
	if m, ok := s.modulators[mode]; ok && m != nil {
		m.Reset()
	}
}

// --- rx handlers ---

type dummyRxHandler struct{}

func (dummyRxHandler) rx(s *Session, amp []int16) (int, error) {
	return len(amp), nil
}

// silenceRxHandler accumulates a crude running level and, once it exceeds
// silenceThreshold, resets silenceHeard back to zero; otherwise it counts
// consecutive quiet samples up. When an AT+FRS command has armed
// silenceAwaited, reaching that many consecutive quiet samples resolves
// the command with OK and returns the session to command mode, matching
// the original's silence_rx.
type silenceRxHandler struct{}

func (silenceRxHandler) rx(s *Session, amp []int16) (int, error) {
	for _, a := range amp {
		level := int64(a) * int64(a)
		if level > s.silenceThreshold {
			s.silenceHeard = 0
		} else {
			s.silenceHeard++
		}
	}
	if s.silenceAwaited != 0 && s.silenceHeard >= s.silenceAwaited {
		s.respond(RespOK)
		s.atRxMode = AtModeOffhookCommand
		s.silenceHeard = 0
		s.silenceAwaited = 0
	}
	return len(amp), nil
}

type v21RxHandler struct{}

func (v21RxHandler) rx(s *Session, amp []int16) (int, error) {
	d := s.demodulators[ModeV21Rx]
	if d == nil {
		return len(amp), nil
	}
	wasPresent := s.rxSignalPresent
	consumed := d.Demod(amp, s.putRxBit)
	s.rxSignalPresent = d.CarrierPresent()
	if wasPresent && !s.rxSignalPresent {
		s.handleCarrierDown()
	}
	return consumed, nil
}

// fastRxHandler runs one of the three high-speed demodulators while also
// feeding the same samples to the V.21 demodulator, so a V.21 preamble
// (signaling retrain, DCN, or a repeated command) can interrupt fast
// reception until the fast side trains. The first side to win permanently takes over: if
// the fast demodulator trains, the handler drops to fastOnlyRxHandler; if
// V.21 gets HDLC flag sync first, v21RacePutByte switches the mode itself
// (to ModeV21Rx on +FAR, or ModeSilenceTx/+FCERROR otherwise), which also
// replaces rxHandler via restartModem. The three fast modes differ only in
// which demodulator is raced, so one generic handler covers all of them.
type fastRxHandler struct {
	mode ModemMode
}

func (h fastRxHandler) rx(s *Session, amp []int16) (int, error) {
	fast := s.demodulators[h.mode]
	if fast == nil {
		return len(amp), nil
	}
	consumed := fast.Demod(amp, s.putRxBit)
	if fast.CarrierPresent() {
		s.rxTrained = true
		s.rxSignalPresent = true
		s.rxHandler = fastOnlyRxHandler{mode: h.mode}
		return consumed, nil
	}
	if v21 := s.demodulators[ModeV21Rx]; v21 != nil {
		v21.Demod(amp, s.putV21RaceBit)
	}
	return consumed, nil
}

// fastOnlyRxHandler runs just the fast demodulator once it has trained
// during a dual-rail race; V.21 no longer needs to be raced once either
// side has won.
type fastOnlyRxHandler struct {
	mode ModemMode
}

func (h fastOnlyRxHandler) rx(s *Session, amp []int16) (int, error) {
	fast := s.demodulators[h.mode]
	if fast == nil {
		return len(amp), nil
	}
	consumed := fast.Demod(amp, s.putRxBit)
	if fast.CarrierPresent() {
		s.rxTrained = true
		s.rxSignalPresent = true
	}
	return consumed, nil
}

// --- tx handlers ---

// silenceTxHandler fills the line with zero samples. Outside an AT+FTS
// countdown (silenceTxSamples == 0) it fills without limit, the idle
// default. During an AT+FTS-armed countdown it underflows once
// silenceTxSamples is exhausted, so handleTxUnderrun's ModeSilenceTx case
// can respond OK at exactly the requested silence duration.
type silenceTxHandler struct{}

func (silenceTxHandler) tx(s *Session, amp []int16, maxLen int) (int, error) {
	for i := range amp[:maxLen] {
		amp[i] = 0
	}
	if s.silenceTxSamples == 0 {
		return maxLen, nil
	}
	n := maxLen
	if int64(n) > s.silenceTxSamples {
		n = int(s.silenceTxSamples)
	}
	s.silenceTxSamples -= int64(n)
	if s.silenceTxSamples <= 0 {
		s.silenceTxSamples = 0
		return n, errTxUnderflow
	}
	return n, nil
}

type cedTxHandler struct{}

func (cedTxHandler) tx(s *Session, amp []int16, maxLen int) (int, error) {
	m := s.modulators[ModeCED]
	if m == nil {
		return silenceTxHandler{}.tx(s, amp, maxLen)
	}
	return m.Mod(amp, maxLen, func() (int, bool) { return 0, true }), nil
}

type cngTxHandler struct{}

func (cngTxHandler) tx(s *Session, amp []int16, maxLen int) (int, error) {
	m := s.modulators[ModeCNG]
	if m == nil {
		return silenceTxHandler{}.tx(s, amp, maxLen)
	}
	return m.Mod(amp, maxLen, func() (int, bool) { return 0, true }), nil
}

// hdlcTxHandler drives the V.21 modulator from the HDLC TX buffer, and
// underflows (signals set_next_tx_type / the TX-underrun switch in tx.go)
// once the buffer is exhausted and no further frame has been queued by the
// DTE.
type hdlcTxHandler struct{}

func (hdlcTxHandler) tx(s *Session, amp []int16, maxLen int) (int, error) {
	m := s.modulators[ModeV21Tx]
	if m == nil {
		return silenceTxHandler{}.tx(s, amp, maxLen)
	}
	exhausted := false
	produced := m.Mod(amp, maxLen, func() (int, bool) {
		bit, ok := s.getTxBit()
		if !ok {
			exhausted = true
		}
		return bit, ok
	})
	if exhausted {
		return produced, errTxUnderflow
	}
	return produced, nil
}

// nonEcmTxHandler drives one of the three fast modulators from the raw
// non-ECM TX byte buffer, bytes as the DTE supplied them (no bit reversal;
// getTxBit sends each byte LSB first).
type nonEcmTxHandler struct {
	mode ModemMode
}

func (h nonEcmTxHandler) tx(s *Session, amp []int16, maxLen int) (int, error) {
	m := s.modulators[h.mode]
	if m == nil {
		return silenceTxHandler{}.tx(s, amp, maxLen)
	}
	exhausted := false
	produced := m.Mod(amp, maxLen, func() (int, bool) {
		bit, ok := s.getTxBit()
		if !ok {
			exhausted = true
		}
		return bit, ok
	})
	if exhausted {
		return produced, errTxUnderflow
	}
	return produced, nil
}
