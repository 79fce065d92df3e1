package t31

// ProcessRxIndicator handles an inbound T.38 IFP indicator packet: it
// arms the corresponding receive expectation (which DataType/FieldType
// pair should follow) without itself producing any bytes toward the DTE.
// The lock must be held.
func (s *Session) ProcessRxIndicator(ind Indicator) error {
	s.checkLock()
	if s.closed {
		return ErrSessionClosed
	}
	if ind == s.currentRxIndicator {
		return nil
	}
	s.currentRxIndicator = ind
	s.metrics.IFPPacketsRecv++

	switch ind {
	case IndNoSignal:
		if s.rxSignalPresent {
			s.handleCarrierDown()
		}
	case IndCNG:
		s.rxSignalPresent = true
	case IndCED:
		s.rxSignalPresent = true
		s.respond(RespConnect)
	case IndV21Preamble:
		s.hdlcRxLen = 0
		s.rxMessageReceived = false
		s.missingData = false
		s.rxSignalPresent = true
		s.armMidRxTimeout()
	case IndV27ter2400Training, IndV27ter4800Training, IndV29Training,
		IndV1714400Training, IndV179600Training, IndV177200Training:
		s.rxDataBytes = 0
		s.rxSignalPresent = true
		s.rxTrained = true
		s.armMidRxTimeout()
	}
	return nil
}

// ProcessRxIndicatorSync is the Sync variant of ProcessRxIndicator.
func (s *Session) ProcessRxIndicatorSync(ind Indicator) error {
	s.Lock()
	defer s.Unlock()
	return s.ProcessRxIndicator(ind)
}

// ProcessRxData handles an inbound T.38 IFP data packet: buf carries the
// field's payload (HDLC frame bytes sans FCS for FieldHdlcData, or raw
// non-ECM image bytes for FieldT4NonEcmData), already in DTE bit order.
// FCS/sig-end fields carry no meaningful payload and instead finalize
// whatever frame or run was in progress. The lock must be held.
func (s *Session) ProcessRxData(dataType DataType, fieldType FieldType, buf []byte) error {
	s.checkLock()
	if s.closed {
		return ErrSessionClosed
	}
	s.metrics.IFPPacketsRecv++

	switch fieldType {
	case FieldHdlcSigStart:
		s.hdlcRxLen = 0
		s.missingData = false

	case FieldHdlcData:
		for _, b := range buf {
			if s.hdlcRxLen >= len(s.hdlcRxBuf) {
				s.missingData = true
				break
			}
			s.hdlcRxBuf[s.hdlcRxLen] = b
			s.hdlcRxLen++
		}

	case FieldHdlcFcsOK, FieldHdlcFcsBad, FieldHdlcFcsOKSigEnd, FieldHdlcFcsBadSigEnd:
		ok := fieldType == FieldHdlcFcsOK || fieldType == FieldHdlcFcsOKSigEnd
		if s.hdlcRxLen > 0 && !s.missingData {
			s.hdlcAccept(s.hdlcRxBuf[:s.hdlcRxLen], ok)
		}
		s.hdlcRxLen = 0
		if fieldType == FieldHdlcFcsOKSigEnd || fieldType == FieldHdlcFcsBadSigEnd {
			s.t38FinishHdlcSignal()
		}

	case FieldHdlcSigEnd:
		s.t38FinishHdlcSignal()

	case FieldT4NonEcmSigStart:
		s.rxDataBytes = 0

	case FieldT4NonEcmData:
		for _, b := range buf {
			nonEcmPutByte(s, bitReverse8(b))
		}

	case FieldT4NonEcmSigEnd:
		s.flushRxData()
		s.rxSignalPresent = false
	}
	return nil
}

// ProcessRxDataSync is the Sync variant of ProcessRxData.
func (s *Session) ProcessRxDataSync(dataType DataType, fieldType FieldType, buf []byte) error {
	s.Lock()
	defer s.Unlock()
	return s.ProcessRxData(dataType, fieldType, buf)
}

// t38FinishHdlcSignal resolves the receive state machine when a T.38 HDLC
// carrier ends, whether because the far end sent a FCS field tagged
// SIG_END or a bare HDLC_SIG_END: this is the T.38 transport's equivalent
// of losing carrier in audio mode, so it shares handleCarrierDown's
// OK/NO CARRIER resolution. +FRH:3 has no T.38 equivalent here: the
// transport's training indicators report rxTrained directly, with no
// audio-mode-style dual-rail race to resolve.
func (s *Session) t38FinishHdlcSignal() {
	s.handleCarrierDown()
}

// ProcessRxMissing reports that the transport detected a gap in the
// sequence of IFP packets (rxSeqNo arrived where expectedSeqNo was due).
// Any HDLC frame in progress is abandoned: a sequence gap is treated as a
// lost frame rather than a recoverable one. The lock must be held.
func (s *Session) ProcessRxMissing(rxSeqNo, expectedSeqNo int) error {
	s.checkLock()
	if s.closed {
		return ErrSessionClosed
	}
	if rxSeqNo == expectedSeqNo {
		return nil
	}
	s.missingData = true
	s.hdlcRxLen = 0
	return nil
}

// ProcessRxMissingSync is the Sync variant of ProcessRxMissing.
func (s *Session) ProcessRxMissingSync(rxSeqNo, expectedSeqNo int) error {
	s.Lock()
	defer s.Unlock()
	return s.ProcessRxMissing(rxSeqNo, expectedSeqNo)
}
