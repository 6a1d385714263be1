// Package recovery wires the flash device, partition registry, differential
// writer and both stores behind one handle, and is the surface the HTTP
// boundary and the CLI call into.
//
// Every label-based operation resolves its region through the registry and
// holds that region's guard for the call's duration; a second operation on
// the same region fails ErrBusy while operations on distinct regions run in
// parallel.
package recovery

import (
	"io"
	"log/slog"

	"github.com/FL0WL0W/ESPRecovery/diffwrite"
	"github.com/FL0WL0W/ESPRecovery/filestore"
	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/config"
	"github.com/FL0WL0W/ESPRecovery/nvs"
	"github.com/FL0WL0W/ESPRecovery/partition"
)

// Options controls OpenDevice.
type Options struct {
	// TableOffset is the partition table offset; zero selects the default.
	TableOffset int64

	// RunningLabel pins the running region; empty assumes the boot target.
	RunningLabel string

	// MaxWriteSize, WriteBufferSize and MaxSessions configure the writer;
	// zero values select the diffwrite defaults.
	MaxWriteSize    int64
	WriteBufferSize int64
	MaxSessions     int

	// Logger receives operation logs; nil discards them.
	Logger *slog.Logger
}

// System is the assembled recovery system over one flash device.
type System struct {
	dev     flash.Device
	reg     *partition.Registry
	writer  *diffwrite.Writer
	kv      *nvs.Store
	files   *filestore.Store
	log     *slog.Logger
	ownsDev bool
}

// Open maps the configured image file and assembles a System that owns the
// device.
func Open(cfg *config.Config) (*System, error) {
	return OpenWithLogger(cfg, nil)
}

// OpenWithLogger is Open with operation logs routed to logger.
func OpenWithLogger(cfg *config.Config, logger *slog.Logger) (*System, error) {
	dev, err := flash.OpenFile(cfg.Image, cfg.ImageSize, cfg.PageSize)
	if err != nil {
		return nil, err
	}
	sys, err := OpenDevice(dev, Options{
		TableOffset:     cfg.TableOffset,
		RunningLabel:    cfg.Running,
		MaxWriteSize:    cfg.MaxWriteSize,
		WriteBufferSize: cfg.WriteBufferSize,
		MaxSessions:     cfg.MaxSessions,
		Logger:          logger,
	})
	if err != nil {
		dev.Close()
		return nil, err
	}
	sys.ownsDev = true
	return sys, nil
}

// OpenDevice assembles a System over an already-open device. The caller
// keeps ownership of dev unless the System came from Open.
func OpenDevice(dev flash.Device, opts Options) (*System, error) {
	reg, err := partition.Open(dev, partition.Options{
		TableOffset:  opts.TableOffset,
		RunningLabel: opts.RunningLabel,
	})
	if err != nil {
		return nil, err
	}
	w, err := diffwrite.New(dev, diffwrite.Options{
		MaxWriteSize: opts.MaxWriteSize,
		BufferSize:   opts.WriteBufferSize,
		MaxSessions:  opts.MaxSessions,
	})
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &System{
		dev:    dev,
		reg:    reg,
		writer: w,
		kv:     nvs.New(dev),
		files:  filestore.New(dev),
		log:    log,
	}, nil
}

// Registry exposes the partition registry directly.
func (s *System) Registry() *partition.Registry { return s.reg }

// Close syncs and, when the System owns its device, closes it.
func (s *System) Close() error {
	err := s.dev.Sync()
	if s.ownsDev {
		if cerr := s.dev.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
