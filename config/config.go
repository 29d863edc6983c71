// Package config holds client, server and per-call configuration and loads
// it from YAML.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"mini-grpc/compression"
)

// Call is the per-call snapshot. It is copied into each call's RPCInfo and
// never mutated afterwards.
type Call struct {
	ConnectTimeout     time.Duration          `yaml:"connect_timeout"`
	ReadTimeout        time.Duration          `yaml:"read_timeout"`
	WriteTimeout       time.Duration          `yaml:"write_timeout"`
	SendCompressions   []compression.Encoding `yaml:"send_compressions"`
	AcceptCompressions []compression.Encoding `yaml:"accept_compressions"`
	MaxSendMessageSize int                    `yaml:"max_send_message_size"`
	MaxRecvMessageSize int                    `yaml:"max_recv_message_size"`
}

// Clone returns a deep copy.
func (c Call) Clone() Call {
	c.SendCompressions = append([]compression.Encoding(nil), c.SendCompressions...)
	c.AcceptCompressions = append([]compression.Encoding(nil), c.AcceptCompressions...)
	return c
}

// HTTP2 is passed through to the HTTP/2 implementation.
type HTTP2 struct {
	MaxConcurrentStreams uint32        `yaml:"max_concurrent_streams"`
	MaxFrameSize         uint32        `yaml:"max_frame_size"`
	MaxHeaderListSize    uint32        `yaml:"max_header_list_size"`
	ReadIdleTimeout      time.Duration `yaml:"read_idle_timeout"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
}

// Client configures a client.
type Client struct {
	Target             string        `yaml:"target"`
	Codec              string        `yaml:"codec"`
	MaxConnsPerAddress int           `yaml:"max_conns_per_address"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
	Call               Call          `yaml:"call"`
	HTTP2              HTTP2         `yaml:"http2"`
}

// Server configures a server.
type Server struct {
	Address            string                 `yaml:"address"`
	AdvertiseAddress   string                 `yaml:"advertise_address"`
	Timeout            time.Duration          `yaml:"timeout"`
	DrainTimeout       time.Duration          `yaml:"drain_timeout"`
	KeepAlive          time.Duration          `yaml:"keep_alive"`
	RegistryTTL        int64                  `yaml:"registry_ttl"`
	SendCompressions   []compression.Encoding `yaml:"send_compressions"`
	AcceptCompressions []compression.Encoding `yaml:"accept_compressions"`
	MaxRecvMessageSize int                    `yaml:"max_recv_message_size"`
	HTTP2              HTTP2                  `yaml:"http2"`
}

// File is the layout of a configuration file.
type File struct {
	Client Client `yaml:"client"`
	Server Server `yaml:"server"`
}

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultDrainTimeout   = 30 * time.Second
	DefaultRegistryTTL    = 10
	DefaultMaxFrameSize   = 16384
)

// DefaultCall returns the defaults used when a client is given no config.
func DefaultCall() Call {
	return Call{
		ConnectTimeout:     DefaultConnectTimeout,
		AcceptCompressions: []compression.Encoding{compression.Gzip, compression.Deflate, compression.Snappy},
	}
}

// DefaultClient returns client defaults.
func DefaultClient() Client {
	return Client{
		Codec:              "proto",
		MaxConnsPerAddress: 1,
		Call:               DefaultCall(),
		HTTP2:              HTTP2{MaxFrameSize: DefaultMaxFrameSize},
	}
}

// DefaultServer returns server defaults.
func DefaultServer() Server {
	return Server{
		DrainTimeout:       DefaultDrainTimeout,
		RegistryTTL:        DefaultRegistryTTL,
		AcceptCompressions: []compression.Encoding{compression.Gzip, compression.Deflate, compression.Snappy},
		HTTP2:              HTTP2{MaxFrameSize: DefaultMaxFrameSize},
	}
}

// Load reads a YAML file layered over the defaults.
func Load(r io.Reader) (*File, error) {
	f := &File{Client: DefaultClient(), Server: DefaultServer()}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(data, f); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return f, f.Validate()
}

// LoadFile is Load for a path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Load(fh)
}

// Validate rejects values that cannot work.
func (f *File) Validate() error {
	if f.Client.MaxConnsPerAddress < 0 {
		return fmt.Errorf("config: client.max_conns_per_address must not be negative")
	}
	for _, fs := range []uint32{f.Client.HTTP2.MaxFrameSize, f.Server.HTTP2.MaxFrameSize} {
		if fs != 0 && (fs < 16384 || fs > 1<<24-1) {
			return fmt.Errorf("config: http2.max_frame_size %d out of range [16384, 16777215]", fs)
		}
	}
	return nil
}
