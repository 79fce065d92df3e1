package t31

// Indicator is a T.38 IFP indicator value (T38_IND_* in the wire
// convention): the thing the far end is told is about to arrive, or has
// stopped arriving, before data packets follow.
type Indicator int

const (
	IndNoSignal Indicator = iota
	IndCNG
	IndCED
	IndV21Preamble
	IndV27ter2400Training
	IndV27ter4800Training
	IndV29Training
	IndV1714400Training
	IndV179600Training
	IndV177200Training
)

// DataType is a T.38 IFP data-packet type (T38_DATA_* in the wire
// convention): which modulation the accompanying field belongs to.
type DataType int

const (
	DataV21 DataType = iota
	DataV27ter2400
	DataV27ter4800
	DataV29
	DataV17
	DataNonECM
)

// FieldType is a T.38 IFP field type, qualifying a data packet as part of
// an HDLC frame stream or a T.4 non-ECM image run.
type FieldType int

const (
	FieldHdlcSigStart FieldType = iota
	FieldHdlcData
	FieldHdlcFcsOK
	FieldHdlcFcsBad
	FieldHdlcFcsOKSigEnd
	FieldHdlcFcsBadSigEnd
	FieldHdlcSigEnd
	FieldT4NonEcmSigStart
	FieldT4NonEcmData
	FieldT4NonEcmSigEnd
)

// T38PacketSink receives one outbound IFP packet. When isIndicator is true
// this is an indicator packet and only ind is meaningful; otherwise it is a
// data packet and dataType/fieldType/data apply. count gives the suggested
// transport-level redundancy for UDP transports (indicator_tx_count /
// data_end_tx_count); a TCP-backed sink should send once regardless.
type T38PacketSink func(s *Session, isIndicator bool, ind Indicator, dataType DataType, fieldType FieldType, data []byte, count int) error

// timedStep names the session's current phase of the T.38 timed-step FSM
// driven by T38SendTimeout, mirroring t31_t38_send_timeout's state names.
type timedStep int

const (
	timedStepNone timedStep = iota
	timedStepCED
	timedStepCED2
	timedStepCNG
	timedStepCNG2
	timedStepPause
	timedStepNonEcmModem1
	timedStepNonEcmModem2
	timedStepNonEcmModem3
	timedStepNonEcmModem4
	timedStepNonEcmModem5
	timedStepHdlcModem1
	timedStepHdlcModem2
	timedStepHdlcModem3
	timedStepHdlcModem4
	timedStepHdlcModem5
)

// trainingTimeMs gives the nominal time, in milliseconds, a real audio-mode
// training sequence for each fast modem would occupy, used to pace a T.38
// indicator packet's redundancy window so the far end has long enough to
// actually retrain.
var trainingTimeMs = map[Indicator]int{
	IndV27ter2400Training: 943,
	IndV27ter4800Training: 708,
	IndV29Training:        943,
	IndV1714400Training:   173,
	IndV179600Training:    173,
	IndV177200Training:    173,
}
