package t31

// Rx feeds one block of received audio samples through the active
// rxHandler, advances the session's sample clocks, and applies the DTE
// receive-side timeouts (mid-receive stall, answer timeout while waiting
// for a preamble). The lock must be held.
func (s *Session) Rx(amp []int16) (int, error) {
	s.checkLock()
	if s.closed {
		return 0, ErrSessionClosed
	}

	n, err := s.rxHandler.rx(s, amp)
	s.samples += int64(n)
	s.callSamples += int64(n)
	s.metrics.Samples += int64(n)
	s.metrics.CallSamples += int64(n)

	if s.modem == ModeCNG && s.callSamples >= s.answerTimeout {
		s.restartModem(ModeSilenceTx)
		s.respond(RespNoCarrier)
		return n, ErrNoCarrierOnAnswer
	}

	if s.midRxDeadline != 0 && s.callSamples >= s.midRxDeadline {
		s.midRxDeadline = 0
		s.logger.Info("timeout mid-receive")
		return n, ErrMidReceiveTimeout
	}

	return n, err
}

// RxSync is the Sync variant of Rx.
func (s *Session) RxSync(amp []int16) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.Rx(amp)
}
