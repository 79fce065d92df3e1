package t31

// Tx fills amp (up to maxLen samples) from the active txHandler. When the
// handler's underlying buffer underflows mid-block, Tx first honors a
// pending one-shot successor handler set via setNextTxType; failing that,
// it falls back to
// handleTxUnderrun's per-mode default. The lock must be held.
func (s *Session) Tx(amp []int16, maxLen int) (int, error) {
	s.checkLock()
	if s.closed {
		return 0, ErrSessionClosed
	}

	// Genuinely idle (no active silence countdown): unless transmitOnIdle
	// asks for the line to be padded with zero samples regardless, produce
	// nothing rather than manufacturing silence audio no caller asked for.
	if s.modem == ModeSilenceTx && s.silenceTxSamples == 0 && !s.transmitOnIdle {
		return 0, nil
	}

	total := 0
	for total < maxLen {
		n, err := s.txHandler.tx(s, amp[total:maxLen], maxLen-total)
		total += n
		if err == nil {
			break
		}
		if err != errTxUnderflow {
			s.advanceTxClock(total)
			return total, err
		}
		if s.nextTxHandler != nil {
			s.txHandler = s.nextTxHandler
			s.nextTxHandler = nil
			continue
		}
		s.handleTxUnderrun()
		if total >= maxLen {
			break
		}
	}

	s.advanceTxClock(total)

	if s.dteDataDeadline != 0 && s.callSamples >= s.dteDataDeadline {
		s.dteDataDeadline = 0
		s.respond(RespError)
		s.restartModem(ModeSilenceTx)
		return total, ErrDTETimeout
	}

	return total, nil
}

// TxSync is the Sync variant of Tx.
func (s *Session) TxSync(amp []int16, maxLen int) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.Tx(amp, maxLen)
}

func (s *Session) advanceTxClock(n int) {
	s.samples += int64(n)
	s.callSamples += int64(n)
	s.metrics.Samples += int64(n)
	s.metrics.CallSamples += int64(n)
}

// setNextTxType arms a one-shot handler swap that Tx applies the next time
// the current handler underflows, instead of falling through to the
// per-mode default. The lock must be held.
func (s *Session) setNextTxType(h txHandler) {
	s.checkLock()
	s.nextTxHandler = h
}

func (s *Session) handleTxUnderrun() {
	switch s.modem {
	case ModeSilenceTx:
		s.respond(RespOK)
		s.atRxMode = AtModeOffhookCommand
		if s.doHangup {
			s.modemControlHandler(s, ModemControlHangup, 0)
			s.doHangup = false
		}
		s.txHandler = silenceTxHandler{}

	case ModeCED:
		s.restartModem(ModeV21Tx)
		s.atRxMode = AtModeHDLC

	case ModeV21Tx, ModeV17Tx, ModeV27terTx, ModeV29Tx:
		s.respond(RespOK)
		s.atRxMode = AtModeOffhookCommand
		s.restartModem(ModeSilenceTx)

	default:
		s.txHandler = silenceTxHandler{}
	}
}
