package main

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	t31 "github.com/faxmodem/t31"
)

// IFP packet wire layout used over the TCP transport in t38Conn. This is a
// compact practical encoding of the fields t31 actually needs (indicator,
// data type, field type, redundancy count, payload), not the ASN.1 PER
// UDPTL encoding the ITU recommendation specifies for interop with a real
// T.38 gateway; wire-level interop is out of scope here (see DESIGN.md).
const (
	ifpKindIndicator byte = 0
	ifpKindData      byte = 1
)

func encodeIFP(isIndicator bool, ind t31.Indicator, dt t31.DataType, ft t31.FieldType, data []byte, count int) []byte {
	if count == 0 {
		count = 1
	}
	buf := make([]byte, 0, 8+len(data))
	if isIndicator {
		buf = append(buf, ifpKindIndicator)
		buf = append(buf, byte(ind))
	} else {
		buf = append(buf, ifpKindData)
		buf = append(buf, byte(dt), byte(ft))
	}
	var cnt [2]byte
	binary.BigEndian.PutUint16(cnt[:], uint16(count))
	buf = append(buf, cnt[:]...)
	buf = append(buf, data...)
	return buf
}

func decodeIFP(p []byte) (kind byte, ind t31.Indicator, dt t31.DataType, ft t31.FieldType, count int, data []byte, err error) {
	if len(p) < 4 {
		return 0, 0, 0, 0, 0, nil, errors.New("ifp: short packet")
	}
	kind = p[0]
	switch kind {
	case ifpKindIndicator:
		ind = t31.Indicator(p[1])
		count = int(binary.BigEndian.Uint16(p[2:4]))
		return kind, ind, 0, 0, count, nil, nil
	case ifpKindData:
		if len(p) < 5 {
			return 0, 0, 0, 0, 0, nil, errors.New("ifp: short packet")
		}
		dt = t31.DataType(p[1])
		ft = t31.FieldType(p[2])
	default:
		return 0, 0, 0, 0, 0, nil, errors.New("ifp: unknown packet kind")
	}
	count = int(binary.BigEndian.Uint16(p[3:5]))
	data = p[5:]
	return kind, ind, dt, ft, count, data, nil
}

func sendIFPPacket(conn *t38Conn, isIndicator bool, ind t31.Indicator, dt t31.DataType, ft t31.FieldType, data []byte, count int) error {
	return conn.writePacket(encodeIFP(isIndicator, ind, dt, ft, data, count))
}

// runT38Loop pumps inbound IFP packets from conn into sess and drives
// T38SendTimeout on a fixed tick until the connection closes. Raw DTE
// bytes are forwarded into AtRx separately, by dteReadLoop.
func runT38Loop(sess *t31.Session, conn *t38Conn, logger *log.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			pkt, err := conn.readPacket()
			if err != nil {
				logger.Info("t38 connection closed", "err", err)
				return
			}
			kind, ind, dt, ft, _, data, err := decodeIFP(pkt)
			if err != nil {
				logger.Warn("bad ifp packet", "err", err)
				continue
			}
			sess.Lock()
			if kind == ifpKindIndicator {
				sess.ProcessRxIndicator(ind)
			} else {
				sess.ProcessRxData(dt, ft, data)
			}
			sess.Unlock()
		}
	}()

	ticker := time.NewTicker(30 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sess.Lock()
			_, err := sess.T38SendTimeout(240) // 30ms at 8kHz
			sess.Unlock()
			if err != nil {
				logger.Debug("t38 send timeout", "err", err)
			}
		}
	}
}
