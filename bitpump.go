package t31

// Demodulator decodes one modulation's baseband samples into bits. A real
// implementation (V.21 FSK, V.27ter/V.29/V.17 QAM/TCM) lives outside this
// package; this core only sequences which demodulator is active and where
// its bits go.
type Demodulator interface {
	// Demod consumes as many samples from amp as it can use and returns
	// how many it consumed. Decoded bits are delivered through putBit as
	// they become available within the call.
	Demod(amp []int16, putBit func(bit int)) (consumed int)
	// CarrierPresent reports whether the demodulator currently believes a
	// carrier is present (used for dual-rail V.21/fast-modem racing and
	// for the silence/CNG/CED power-style heuristics).
	CarrierPresent() bool
	// Reset restarts the demodulator's internal training state.
	Reset()
}

// Modulator encodes bits into one modulation's baseband samples. As with
// Demodulator, the actual waveform synthesis is out of scope here.
type Modulator interface {
	// Mod fills amp (up to maxLen samples) from bits supplied by getBit,
	// which returns ok=false once the bit source is exhausted (e.g. the
	// TX buffer has drained). Returns the
	// number of samples produced.
	Mod(amp []int16, maxLen int, getBit func() (bit int, ok bool)) (produced int)
	// Reset restarts the modulator's internal training state (preamble,
	// training sequence) for a fresh transmission.
	Reset()
}

// rxHandler is the per-mode audio receive strategy selected by
// restartModem. Its Rx method is called once per Session.Rx invocation
// with the full sample buffer for that call.
type rxHandler interface {
	rx(s *Session, amp []int16) (int, error)
}

// txHandler is the per-mode audio transmit strategy selected by
// restartModem or setNextTxType's one-shot successor swap.
type txHandler interface {
	tx(s *Session, amp []int16, maxLen int) (int, error)
}

// --- bit-level glue between the HDLC/non-ECM byte buffers and a Modulator/Demodulator ---

// getTxBit pulls the next bit from the active TX byte source (hdlcTxBuf in
// HDLC mode, txData in non-ECM mode), LSB first. ok is false once the
// source is drained.
func (s *Session) getTxBit() (bit int, ok bool) {
	if s.bitNo == 0 {
		b, hasMore := s.nextTxByte()
		if !hasMore {
			return 0, false
		}
		s.currentByte = b
		s.bitNo = 8
	}
	s.bitNo--
	bit = int(s.currentByte>>uint(7-s.bitNo)) & 1
	return bit, true
}

// nextTxByte supplies the next raw byte for getTxBit, from whichever
// buffer is active for the current AT mode.
func (s *Session) nextTxByte() (byte, bool) {
	if s.atRxMode == AtModeHDLC {
		if s.hdlcTxPtr >= s.hdlcTxLen {
			return 0, false
		}
		b := s.hdlcTxBuf[s.hdlcTxPtr]
		s.hdlcTxPtr++
		return b, true
	}
	if s.txOutBytes >= s.txInBytes {
		return 0, false
	}
	b := s.txData[s.txOutBytes]
	s.txOutBytes++
	return b, true
}

// putRxBit accumulates one demodulated bit into the active RX byte sink,
// LSB first as the line carries HDLC bits, flushing a completed byte to
// hdlcPutByte or nonEcmPutByte.
func (s *Session) putRxBit(bit int) {
	s.currentByte >>= 1
	if bit != 0 {
		s.currentByte |= 0x80
	}
	s.bitNo++
	if s.bitNo < 8 {
		return
	}
	s.bitNo = 0
	b := s.currentByte
	s.currentByte = 0
	if s.rxBitSink != nil {
		s.rxBitSink(s, b)
	}
}

// putV21RaceBit is putRxBit's counterpart for the V.21 side of a dual-rail
// fast receive: it uses its own byte accumulator so racing the fast
// demodulator's putRxBit concurrently within one fastRxHandler.rx call
// never corrupts either side's in-progress byte.
func (s *Session) putV21RaceBit(bit int) {
	s.v21RaceByte >>= 1
	if bit != 0 {
		s.v21RaceByte |= 0x80
	}
	s.v21RaceBitNo++
	if s.v21RaceBitNo < 8 {
		return
	}
	s.v21RaceBitNo = 0
	b := s.v21RaceByte
	s.v21RaceByte = 0
	s.v21RacePutByte(b)
}
