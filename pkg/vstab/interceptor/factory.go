package interceptor

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"

	"github.com/thesyncim/vstab/pkg/vstab"
)

// FactoryOption configures the StabilizerInterceptorFactory.
type FactoryOption func(*StabilizerInterceptorFactory) error

// StabilizerInterceptorFactory creates StabilizerInterceptor instances for
// each PeerConnection. Register this factory with the interceptor registry
// to stabilize incoming luma streams.
type StabilizerInterceptorFactory struct {
	config        vstab.Config
	newTracker    func() vstab.Tracker
	loggerFactory logging.LoggerFactory
	pliInterval   time.Duration
	senderSSRC    uint32
	mtu           uint16
	onFrame       func(ssrc uint32, frame vstab.Frame, stats vstab.Stats)
	onInterceptor func(id string, i *StabilizerInterceptor)
}

// WithFactoryConfig sets the stabilizer configuration.
// Default: vstab.DefaultConfig()
func WithFactoryConfig(config vstab.Config) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		if err := config.Validate(); err != nil {
			return err
		}
		f.config = config
		return nil
	}
}

// WithFactoryConfigFile loads the stabilizer configuration from a JSON file.
func WithFactoryConfigFile(path string) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		config, err := vstab.LoadConfig(path)
		if err != nil {
			return err
		}
		f.config = config
		return nil
	}
}

// WithFactoryTrackerFactory sets the constructor of per-stream trackers.
// Default: vstab.GridTracker with default settings
func WithFactoryTrackerFactory(fn func() vstab.Tracker) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		f.newTracker = fn
		return nil
	}
}

// WithFactoryLoggerFactory sets the Pion logger factory handed to every
// interceptor.
func WithFactoryLoggerFactory(lf logging.LoggerFactory) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		f.loggerFactory = lf
		return nil
	}
}

// WithFactoryPLIInterval sets the minimum spacing of PLIs per stream.
// Default: 500ms
func WithFactoryPLIInterval(interval time.Duration) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		if interval <= 0 {
			return errors.New("PLI interval must be positive")
		}
		f.pliInterval = interval
		return nil
	}
}

// WithFactorySenderSSRC sets the sender SSRC for PLI packets.
// Default: 0
func WithFactorySenderSSRC(ssrc uint32) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		f.senderSSRC = ssrc
		return nil
	}
}

// WithFactoryMTU sets the size limit of re-packetized RTP packets.
// Default: 1200
func WithFactoryMTU(mtu uint16) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		if mtu <= 12+packetHeaderSize {
			return fmt.Errorf("MTU %d cannot hold a luma packet", mtu)
		}
		f.mtu = mtu
		return nil
	}
}

// WithFactoryOnFrame sets a callback invoked for every stabilized frame.
func WithFactoryOnFrame(fn func(ssrc uint32, frame vstab.Frame, stats vstab.Stats)) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		f.onFrame = fn
		return nil
	}
}

// WithFactoryOnInterceptor sets a callback receiving every interceptor the
// factory creates, with the PeerConnection id it was created for.
func WithFactoryOnInterceptor(fn func(id string, i *StabilizerInterceptor)) FactoryOption {
	return func(f *StabilizerInterceptorFactory) error {
		f.onInterceptor = fn
		return nil
	}
}

// NewStabilizerInterceptorFactory creates a new factory for
// StabilizerInterceptor instances.
//
// Example:
//
//	factory, err := NewStabilizerInterceptorFactory(
//	    WithFactoryConfigFile("vstab.json"),
//	    WithFactoryPLIInterval(time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewStabilizerInterceptorFactory(opts ...FactoryOption) (*StabilizerInterceptorFactory, error) {
	f := &StabilizerInterceptorFactory{
		config:      vstab.DefaultConfig(),
		pliInterval: DefaultPLISchedulerConfig().Interval,
		mtu:         DefaultMTU,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor creates a new StabilizerInterceptor for a PeerConnection.
// This method is called by the interceptor registry when setting up a connection.
func (f *StabilizerInterceptorFactory) NewInterceptor(id string) (interceptor.Interceptor, error) {
	opts := []InterceptorOption{
		WithConfig(f.config),
		WithPLIInterval(f.pliInterval),
		WithSenderSSRC(f.senderSSRC),
		WithMTU(f.mtu),
	}
	if f.newTracker != nil {
		opts = append(opts, WithTrackerFactory(f.newTracker))
	}
	if f.loggerFactory != nil {
		opts = append(opts, WithLoggerFactory(f.loggerFactory))
	}
	if f.onFrame != nil {
		opts = append(opts, WithOnFrame(f.onFrame))
	}

	i, err := NewStabilizerInterceptor(opts...)
	if err != nil {
		return nil, err
	}
	if f.onInterceptor != nil {
		f.onInterceptor(id, i)
	}
	return i, nil
}
