// internal/protocol/connection.go
package protocol

import "time"

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// TCPConfig represents TCP connection configuration, used for serial-over-network bridges
type TCPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	KeepAlive    bool          `json:"keep_alive"`
	Timeout      time.Duration `json:"timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LinkConfig configures the transport link and the defaults used when dialing
type LinkConfig struct {
	WriteQueueSize int
	ReadBufferSize int
	Serial         SerialConfig
	TCP            TCPConfig
}
