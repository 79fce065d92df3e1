package t31

// SetT38Config selects between the UDP-style redundant-packet pacing and
// the TCP-style send-once pacing withoutPacing selects. Whether the session
// is in T.38 mode at all is decided by whether it was created with a
// T38PacketSink, not by this call.
func (s *Session) SetT38Config(withoutPacing bool) {
	s.checkLock()
	s.setT38Config(withoutPacing)
}

func (s *Session) setT38Config(withoutPacing bool) {
	s.t38Mode = s.t38PacketSink != nil
	if withoutPacing {
		s.indicatorTxCount = 0
		s.dataEndTxCount = 1
		s.msPerTxChunk = 0
	} else {
		s.indicatorTxCount = 3
		s.dataEndTxCount = 3
		s.msPerTxChunk = 30
	}
	s.octetsPerDataPacket = 40
}

// SetT38ConfigSync is the Sync variant of SetT38Config.
func (s *Session) SetT38ConfigSync(withoutPacing bool) {
	s.Lock()
	defer s.Unlock()
	s.SetT38Config(withoutPacing)
}

// T38SendTimeout advances the T.38 timed-step FSM by one scheduler tick
// (samples worth of elapsed time, at sampleRate), emitting at most one IFP
// packet through T38PacketSink. It returns true if there is more work to
// do (the caller should call again after msPerTxChunk) and false once the
// FSM has gone idle (silence, nothing queued). The lock must be held.
func (s *Session) T38SendTimeout(samples int) (bool, error) {
	s.checkLock()
	if s.closed {
		return false, ErrSessionClosed
	}
	if !s.t38Mode || s.t38PacketSink == nil {
		return false, nil
	}

	s.samples += int64(samples)
	s.callSamples += int64(samples)

	switch s.modem {
	case ModeCED:
		return s.t38StepCED()
	case ModeCNG:
		return s.t38StepCNG()
	case ModeV21Tx:
		return s.t38StepHDLC()
	case ModeV17Tx, ModeV27terTx, ModeV29Tx:
		return s.t38StepNonEcm()
	case ModeSilenceTx, ModeSilenceRx:
		return false, nil
	default:
		return false, nil
	}
}

// T38SendTimeoutSync is the Sync variant of T38SendTimeout.
func (s *Session) T38SendTimeoutSync(samples int) (bool, error) {
	s.Lock()
	defer s.Unlock()
	return s.T38SendTimeout(samples)
}

func (s *Session) t38StepCED() (bool, error) {
	if s.timedStep != timedStepCED {
		s.timedStep = timedStepCED
		if err := s.t38PacketSink(s, true, IndCED, 0, 0, nil, s.indicatorTxCount); err != nil {
			return false, err
		}
		return true, nil
	}
	s.timedStep = timedStepNone
	s.handleTxUnderrun()
	return false, nil
}

func (s *Session) t38StepCNG() (bool, error) {
	if s.timedStep != timedStepCNG {
		s.timedStep = timedStepCNG
		if err := s.t38PacketSink(s, true, IndCNG, 0, 0, nil, s.indicatorTxCount); err != nil {
			return false, err
		}
	}
	if s.callSamples >= s.answerTimeout {
		s.timedStep = timedStepNone
		s.restartModem(ModeSilenceTx)
		s.respond(RespNoCarrier)
		return false, ErrNoCarrierOnAnswer
	}
	return true, nil
}

// t38StepHDLC walks the HDLC TX buffer out as T.38 IFP V21 data packets,
// preceded by a V.21 preamble indicator and followed by the FCS field that
// carries the frame's pass/fail status instead of transmitting FCS bytes
// on the wire.
func (s *Session) t38StepHDLC() (bool, error) {
	switch s.timedStep {
	case timedStepNone, timedStepHdlcModem1:
		s.timedStep = timedStepHdlcModem1
		if err := s.t38PacketSink(s, true, IndV21Preamble, 0, 0, nil, s.indicatorTxCount); err != nil {
			return false, err
		}
		s.timedStep = timedStepHdlcModem2
		return true, nil

	case timedStepHdlcModem2:
		if s.hdlcTxPtr >= s.hdlcTxLen {
			s.timedStep = timedStepHdlcModem3
			return true, nil
		}
		chunk := s.takeHdlcChunk()
		if err := s.t38PacketSink(s, false, 0, DataV21, FieldHdlcData, chunk, 1); err != nil {
			return false, err
		}
		return true, nil

	case timedStepHdlcModem3:
		// Our own FCS is always correct, so the field type is always OK;
		// a far end generating bad frames on purpose is not something
		// this side needs to simulate.
		if err := s.t38PacketSink(s, false, 0, DataV21, FieldHdlcFcsOK, nil, s.dataEndTxCount); err != nil {
			return false, err
		}
		s.timedStep = timedStepHdlcModem4
		return true, nil

	case timedStepHdlcModem4:
		// Some boxes dislike a T38_FIELD_HDLC_SIG_END here; a plain
		// no-signal indicator is always accepted and leaves the sequence
		// ending, as Testable Property requires, on NO_SIGNAL.
		s.timedStep = timedStepHdlcModem5
		if err := s.t38PacketSink(s, true, IndNoSignal, 0, 0, nil, s.indicatorTxCount); err != nil {
			return false, err
		}
		return true, nil

	case timedStepHdlcModem5:
		s.timedStep = timedStepNone
		s.handleTxUnderrun()
		return s.modem != ModeSilenceTx, nil
	}
	return false, nil
}

func (s *Session) takeHdlcChunk() []byte {
	n := s.octetsPerDataPacket
	remaining := s.hdlcTxLen - s.hdlcTxPtr
	if n > remaining {
		n = remaining
	}
	chunk := make([]byte, n)
	copy(chunk, s.hdlcTxBuf[s.hdlcTxPtr:s.hdlcTxPtr+n])
	s.hdlcTxPtr += n
	return chunk
}

// t38StepNonEcm walks the non-ECM TX byte buffer out as T.38 IFP data
// packets for whichever fast modulation is selected. The sequence has five
// steps: an initial no-signal indicator (some far ends expect the 75ms gap
// it represents before training starts), the real training indicator
// repeated enough times (indicatorRepeatCount) for a real decoder to
// retrain, data chunks, a zero-padded trailer that tolerates ATAs which
// corrupt the last rows of an image if the signal stops too abruptly, and
// a final no-signal indicator closing the sequence out.
func (s *Session) t38StepNonEcm() (bool, error) {
	ind, dt := s.t38FastIndicator()

	switch s.timedStep {
	case timedStepNone, timedStepNonEcmModem1:
		s.timedStep = timedStepNonEcmModem1
		if err := s.t38PacketSink(s, true, IndNoSignal, 0, 0, nil, s.indicatorTxCount); err != nil {
			return false, err
		}
		s.timedStep = timedStepNonEcmModem2
		return true, nil

	case timedStepNonEcmModem2:
		if err := s.t38PacketSink(s, true, ind, 0, 0, nil, s.indicatorRepeatCount(ind)); err != nil {
			return false, err
		}
		s.timedStep = timedStepNonEcmModem3
		return true, nil

	case timedStepNonEcmModem3:
		chunk := s.takeNonEcmChunk()
		full := chunk
		if len(chunk) < s.octetsPerDataPacket {
			full = make([]byte, s.octetsPerDataPacket)
			copy(full, chunk)
			s.trailerBytes = 3*s.octetsPerDataPacket + len(chunk)
			s.timedStep = timedStepNonEcmModem4
		}
		if err := s.t38PacketSink(s, false, 0, dt, FieldT4NonEcmData, full, 1); err != nil {
			return false, err
		}
		return true, nil

	case timedStepNonEcmModem4:
		n := s.octetsPerDataPacket
		s.trailerBytes -= n
		if s.trailerBytes <= 0 {
			n += s.trailerBytes
			if err := s.t38PacketSink(s, false, 0, dt, FieldT4NonEcmSigEnd, make([]byte, n), s.dataEndTxCount); err != nil {
				return false, err
			}
			s.timedStep = timedStepNonEcmModem5
			return true, nil
		}
		if err := s.t38PacketSink(s, false, 0, dt, FieldT4NonEcmData, make([]byte, n), 1); err != nil {
			return false, err
		}
		return true, nil

	case timedStepNonEcmModem5:
		if err := s.t38PacketSink(s, true, IndNoSignal, 0, 0, nil, s.indicatorTxCount); err != nil {
			return false, err
		}
		s.timedStep = timedStepNone
		s.handleTxUnderrun()
		return s.modem != ModeSilenceTx, nil
	}
	return false, nil
}

func (s *Session) takeNonEcmChunk() []byte {
	n := s.octetsPerDataPacket
	remaining := s.txInBytes - s.txOutBytes
	if n > remaining {
		n = remaining
	}
	chunk := make([]byte, n)
	for i := 0; i < n; i++ {
		chunk[i] = bitReverse8(s.txData[s.txOutBytes+i])
	}
	s.txOutBytes += n
	return chunk
}

// indicatorRepeatCount returns how many times to redundantly send a
// training indicator: at least the configured indicatorTxCount, but more if
// trainingTimeMs says a real decoder at the far end needs longer than that
// many chunks to actually retrain.
func (s *Session) indicatorRepeatCount(ind Indicator) int {
	count := s.indicatorTxCount
	if ms, ok := trainingTimeMs[ind]; ok && s.msPerTxChunk > 0 {
		needed := (ms + s.msPerTxChunk - 1) / s.msPerTxChunk
		if needed > count {
			count = needed
		}
	}
	return count
}

func (s *Session) t38FastIndicator() (Indicator, DataType) {
	switch s.modem {
	case ModeV27terTx:
		if s.shortTrain {
			return IndV27ter4800Training, DataV27ter4800
		}
		return IndV27ter2400Training, DataV27ter2400
	case ModeV29Tx:
		return IndV29Training, DataV29
	case ModeV17Tx:
		switch {
		case s.bitRate >= 14400:
			return IndV1714400Training, DataV17
		case s.bitRate >= 9600:
			return IndV179600Training, DataV17
		default:
			return IndV177200Training, DataV17
		}
	default:
		return IndNoSignal, DataNonECM
	}
}
