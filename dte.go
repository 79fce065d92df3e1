package t31

// AtRx feeds bytes arriving from the DTE into the session. Its
// interpretation depends on the current AtRxMode: in HDLC/Stuffed mode the
// bytes are DLE-unstuffed into the appropriate TX buffer; in
// Onhook/OffhookCommand mode AT command interpretation is out of scope for
// this package and b is expected to already have been reduced to the
// class-1 primitives dispatched via ProcessClass1Cmd by the caller. AtRx
// exists for the two modes that this package itself must own because they
// interact directly with the TX byte buffers and DLE state: HDLC and
// Stuffed. The lock must be held.
func (s *Session) AtRx(b []byte) (int, error) {
	s.checkLock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	s.metrics.RxBytesFromDTE += int64(len(b))

	switch s.atRxMode {
	case AtModeHDLC:
		return s.atRxHDLC(b)
	case AtModeStuffed:
		return s.atRxStuffed(b)
	case AtModeDelivery:
		// Any DTE byte while delivery mode is armed aborts the wait and
		// returns to command mode: whatever the DTE was about to send
		// instead of draining a frame is not this package's concern.
		if len(b) == 0 {
			return 0, nil
		}
		if s.rxSignalPresent {
			s.emitDleEtxToDTE()
		}
		s.rxDataBytes = 0
		s.modem = ModeSilenceTx
		s.atRxMode = AtModeOffhookCommand
		s.respond(RespOK)
		return len(b), nil
	default:
		return len(b), nil
	}
}

// AtRxSync is the Sync variant of AtRx.
func (s *Session) AtRxSync(b []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.AtRx(b)
}

func (s *Session) atRxHDLC(b []byte) (int, error) {
	res := dleUnstuff(&s.dled, b)
	exhausted := false
	for _, raw := range res.out {
		if s.hdlcTxLen >= len(s.hdlcTxBuf)-2 {
			exhausted = true
			continue
		}
		s.hdlcTxBuf[s.hdlcTxLen] = raw
		s.hdlcTxLen++
	}
	if res.terminated {
		s.hdlcFinal = true
		s.dteIsWaiting = false
		s.dteDataDeadline = 0
		s.respond(RespOK)
	} else if len(res.out) > 0 {
		s.armDteDataTimeout()
	}
	if exhausted {
		return res.consumed, ErrBufferExhausted
	}
	return res.consumed, nil
}

func (s *Session) atRxStuffed(b []byte) (int, error) {
	res := dleUnstuff(&s.dled, b)
	exhausted := false
	for _, raw := range res.out {
		if s.txInBytes >= len(s.txData) {
			s.compactTxBuffer()
			if s.txInBytes >= len(s.txData) {
				exhausted = true
				continue
			}
		}
		s.txData[s.txInBytes] = raw
		s.txInBytes++
	}
	if res.terminated {
		s.dataFinal = true
		s.dteIsWaiting = false
		s.dteDataDeadline = 0
		s.respond(RespOK)
	} else if len(res.out) > 0 {
		s.armDteDataTimeout()
	}
	if exhausted {
		return res.consumed, ErrBufferExhausted
	}
	return res.consumed, nil
}

// compactTxBuffer shifts the unconsumed tail of txData down to offset 0,
// making room for more DTE bytes without growing the buffer, at the cost
// of an O(n) shift on every call once the buffer fills.
func (s *Session) compactTxBuffer() {
	if s.txOutBytes == 0 {
		return
	}
	remaining := s.txInBytes - s.txOutBytes
	copy(s.txData[:remaining], s.txData[s.txOutBytes:s.txInBytes])
	s.txOutBytes = 0
	s.txInBytes = remaining
}

// hdlcPutByte assembles bytes delivered by the V.21 demodulator into HDLC
// frames, recognizing the flag byte to (re)synchronize and handing a
// complete frame to hdlcAccept once its FCS has been checked.
func hdlcPutByte(s *Session, b byte) {
	s.armMidRxTimeout()
	if b == hdlcFlag {
		if s.hdlcRxLen >= 2 && !s.missingData {
			ok := checkHdlcFCS(s.hdlcRxBuf[:s.hdlcRxLen])
			s.hdlcAccept(s.hdlcRxBuf[:s.hdlcRxLen-2], ok)
		}
		s.hdlcRxLen = 0
		s.missingData = false
		// Framing achieved: once any valid HDLC preamble is seen while
		// CNG/NoCNG is playing, the tone has done its job and the modem
		// drops silently to plain V.21 receive for whatever message
		// follows the preamble.
		if s.modem == ModeCNG || s.modem == ModeNoCNG {
			s.restartModem(ModeV21Rx)
		}
		return
	}
	if s.hdlcRxLen >= len(s.hdlcRxBuf) {
		s.missingData = true
		return
	}
	s.hdlcRxBuf[s.hdlcRxLen] = b
	s.hdlcRxLen++
}

// v21RacePutByte watches the V.21 side of a dual-rail fast receive for HDLC
// flag sync, mirroring hdlc_accept's framing-achieved special case for a
// fast-RX mode still active: the far end is using V.21 instead of the
// negotiated fast modulation. Adaptive receive switches over to plain V.21
// receive and reports +FRH:3/CONNECT; otherwise it is a reportable
// mismatch, +FCERROR, and the line goes silent.
func (s *Session) v21RacePutByte(b byte) {
	if b != hdlcFlag {
		return
	}
	if s.adaptiveReceive {
		s.restartModem(ModeV21Rx)
		s.rxSignalPresent = true
		s.rxMessageReceived = true
		s.dteIsWaiting = true
		s.respond(RespFRH3)
		s.respond(RespConnect)
	} else {
		s.restartModem(ModeSilenceTx)
		s.atRxMode = AtModeOffhookCommand
		s.respond(RespFCError)
	}
}

// hdlcAccept delivers a completed HDLC frame toward the DTE, either
// directly (if the DTE is waiting for one) or via the bounded
// received-frame queue, reporting OK or ERROR according to the FCS check
// regardless of which path is taken: a bad frame is still delivered and
// still gets a result code, it is just ERROR instead of OK. The first
// frame of a receive announces CONNECT (directly if the DTE is
// waiting, queued as a solo record otherwise) before anything else. A
// frame whose second byte is 0x13 (DISC/DCN, the last frame of a batch)
// defers its OK until carrier actually drops, via okIsPending, so the
// far end doesn't get an early OK that gets redetected as a new message.
func (s *Session) hdlcAccept(payload []byte, ok bool) {
	if !ok {
		s.metrics.CRCErrors++
	}

	if !s.rxMessageReceived {
		if s.dteIsWaiting {
			s.respond(RespConnect)
			s.rxMessageReceived = true
		} else {
			if s.rxQueue.write([]byte{byte(RespConnect)}) {
				s.metrics.FramesQueued++
			}
			s.rxMessageReceived = true
		}
	}

	if s.okIsPending {
		return
	}

	code := RespError
	if ok {
		code = RespOK
	}

	if s.dteIsWaiting {
		out := dleStuff(nil, payload)
		out = append(out, dle, etx)
		s.atDataSink(s, out)
		s.metrics.FramesDelivered++
		if ok && len(payload) >= 2 && payload[1] == 0x13 {
			s.okIsPending = true
		} else {
			s.respond(code)
			s.dteIsWaiting = false
			s.rxMessageReceived = false
		}
	} else {
		rec := make([]byte, 0, len(payload)+1)
		rec = append(rec, byte(code))
		rec = append(rec, payload...)
		if s.rxQueue.write(rec) {
			s.metrics.FramesQueued++
		}
	}
	s.atRxMode = AtModeOffhookCommand
}

// handleCarrierDown resolves whatever receive state was pending when the
// carrier dropped, mirroring hdlcAccept's own carrier-up/down bookkeeping.
// Only when CONNECT has been announced for the current receive
// (rxMessageReceived): a deferred OK is released, or else an explicit NO
// CARRIER is reported, if the DTE is still waiting; otherwise a NO CARRIER
// record is queued for the next drain. With rxMessageReceived false no
// result code is produced. rxSignalPresent/rxTrained are always cleared.
// Shared by the audio-mode V.21 carrier-edge detector, the T.38 ingress
// HDLC-signal-end handler and the T.38 no-signal indicator.
func (s *Session) handleCarrierDown() {
	if s.rxMessageReceived {
		if s.dteIsWaiting {
			if s.okIsPending {
				s.respond(RespOK)
				s.okIsPending = false
			} else {
				s.respond(RespNoCarrier)
			}
			s.dteIsWaiting = false
			s.atRxMode = AtModeOffhookCommand
		} else if s.rxQueue.write([]byte{byte(RespNoCarrier)}) {
			s.metrics.FramesQueued++
		}
	}
	s.rxSignalPresent = false
	s.rxTrained = false
}

// nonEcmPutByte bit-reverses a completed image-data byte and forwards it to
// the DTE, doubled for any embedded DLE, matching the same wire convention
// HDLC frames use (see DESIGN.md for why the reversal happens on the
// completed byte rather than on the buffer it lands in).
func nonEcmPutByte(s *Session, b byte) {
	s.armMidRxTimeout()
	rb := bitReverse8(b)
	s.rxData[s.rxDataBytes] = rb
	s.rxDataBytes++
	if rb == dle {
		s.rxData[s.rxDataBytes] = dle
		s.rxDataBytes++
	}
	if s.rxDataBytes >= len(s.rxData)-4 {
		s.flushRxData()
	}
}
