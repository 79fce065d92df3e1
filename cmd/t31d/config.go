package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk daemon configuration: which DTE transport to
// bridge (a fresh pty, or a real serial port), how to reach the fax
// transport (T.38 over a packet socket), and logging.
type Config struct {
	DTE struct {
		// SerialPort, if set, bridges a real serial device (go.bug.st/serial)
		// instead of allocating a pty.
		SerialPort string `yaml:"serial_port"`
		BaudRate   int    `yaml:"baud_rate"`
	} `yaml:"dte"`

	T38 struct {
		ListenAddr    string `yaml:"listen_addr"`
		WithoutPacing bool   `yaml:"without_pacing"`
		Trace         bool   `yaml:"trace"`
	} `yaml:"t38"`

	Modem struct {
		AdaptiveReceive      bool `yaml:"adaptive_receive"`
		AnswerTimeoutSeconds int  `yaml:"answer_timeout_seconds"`
	} `yaml:"modem"`

	Log struct {
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		Level      string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	c := &Config{}
	c.DTE.BaudRate = 115200
	c.T38.ListenAddr = ":6784"
	c.Modem.AnswerTimeoutSeconds = 60
	c.Log.MaxSizeMB = 50
	c.Log.MaxBackups = 5
	c.Log.Level = "info"
	return c
}

func loadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
