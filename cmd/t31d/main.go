// Command t31d bridges a DTE (a pty, or a real serial port) running a
// Class 1 fax application to a T.38 transport, using the t31 package for
// all command/HDLC/non-ECM state tracking.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"
	"go.bug.st/serial"
	"gopkg.in/natefinch/lumberjack.v2"

	t31 "github.com/faxmodem/t31"
)

type options struct {
	Config string `short:"c" long:"config" description:"path to config.yaml" default:""`
	Listen bool   `short:"l" long:"listen" description:"listen for an incoming T.38 connection instead of dialing"`
	Addr   string `short:"t" long:"t38-addr" description:"T.38 peer address (dial) or listen address"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if opts.Addr != "" {
		cfg.T38.ListenAddr = opts.Addr
	}

	logger := newLogger(cfg)

	dte, dteName, err := openDTE(cfg)
	if err != nil {
		logger.Fatal("open dte", "err", err)
	}
	defer dte.Close()
	logger.Info("dte ready", "path", dteName)

	conn, err := connectT38(cfg, opts.Listen)
	if err != nil {
		logger.Fatal("t38 connect", "err", err)
	}
	defer conn.Close()

	sess, err := t31.NewSession(&t31.SessionConfig{
		AtResponseSink: func(s *t31.Session, code t31.ResponseCode) {
			fmt.Fprintf(dte, "\r\n%s\r\n", code)
		},
		AtDataSink: func(s *t31.Session, data []byte) {
			dte.Write(data)
		},
		ModemControlHandler: func(s *t31.Session, op t31.ModemControlOp, arg int) {
			logger.Debug("modem control", "op", op, "arg", arg)
		},
		T38PacketSink: func(s *t31.Session, isIndicator bool, ind t31.Indicator, dt t31.DataType, ft t31.FieldType, data []byte, count int) error {
			return sendIFPPacket(conn, isIndicator, ind, dt, ft, data, count)
		},
		Logger:               logger,
		AdaptiveReceive:      cfg.Modem.AdaptiveReceive,
		AnswerTimeoutSeconds: cfg.Modem.AnswerTimeoutSeconds,
	})
	if err != nil {
		logger.Fatal("new session", "err", err)
	}
	sess.SetT38ConfigSync(cfg.T38.WithoutPacing)

	go dteReadLoop(sess, dte, logger)
	runT38Loop(sess, conn, logger)
}

func dteReadLoop(sess *t31.Session, dte dteDevice, logger *log.Logger) {
	buf := make([]byte, 512)
	for {
		n, err := dte.Read(buf)
		if err != nil {
			logger.Info("dte closed", "err", err)
			return
		}
		sess.Lock()
		sess.AtRx(buf[:n])
		sess.Unlock()
	}
}

func newLogger(cfg *Config) *log.Logger {
	out := os.Stderr
	if cfg.Log.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.Path,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		logger := log.New(rotator)
		logger.SetLevel(parseLevel(cfg.Log.Level))
		return logger
	}
	logger := log.New(out)
	logger.SetLevel(parseLevel(cfg.Log.Level))
	return logger
}

func parseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// dteDevice is satisfied by both the pty bridge and a real serial port.
type dteDevice interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

func openDTE(cfg *Config) (dteDevice, string, error) {
	if cfg.DTE.SerialPort != "" {
		mode := &serial.Mode{BaudRate: cfg.DTE.BaudRate}
		port, err := serial.Open(cfg.DTE.SerialPort, mode)
		if err != nil {
			return nil, "", err
		}
		return port, cfg.DTE.SerialPort, nil
	}
	p, err := newDtePty()
	if err != nil {
		return nil, "", err
	}
	return p, p.Name(), nil
}

func connectT38(cfg *Config, listen bool) (*t38Conn, error) {
	if listen {
		ln, err := net.Listen("tcp", cfg.T38.ListenAddr)
		if err != nil {
			return nil, err
		}
		defer ln.Close()
		return acceptT38(ln, cfg.T38.Trace)
	}
	return dialT38(cfg.T38.ListenAddr, cfg.T38.Trace)
}
