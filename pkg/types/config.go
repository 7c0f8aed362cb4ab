// Package types provides configuration types for the portfolio backend.
package types

import "time"

// ServerConfig configures the HTTP/WebSocket API server.
type ServerConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	WebSocketPath string        `json:"websocketPath" mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
}

// DefaultServerConfig returns sensible server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "localhost",
		Port:          8090,
		WebSocketPath: "/ws",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// DataConfig configures the price history store.
type DataConfig struct {
	DataDir    string `json:"dataDir" mapstructure:"data_dir"`
	QuoteToken string `json:"quoteToken" mapstructure:"quote_token"`
}

// DefaultDataConfig returns sensible data defaults.
func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		DataDir:    "./data",
		QuoteToken: "USDC",
	}
}
