package mantis_arm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// LineHandler receives every line read from the controller.
type LineHandler interface {
	HandleLine(line string)
}

// SerialLink carries newline terminated text lines to and from a controller.
type SerialLink struct {
	name   string
	logger logging.Logger
	port   io.ReadWriteCloser

	writeMu sync.Mutex
	closing atomic.Bool

	errMu   sync.Mutex
	readErr error

	workers *goutils.StoppableWorkers
}

// OpenSerialLink opens the configured port at 8N1.
func OpenSerialLink(cfg *MantisConfig, logger logging.Logger) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	if cfg.Timeout > 0 {
		if err := port.SetReadTimeout(cfg.Timeout); err != nil {
			return nil, multierr.Combine(fmt.Errorf("failed to set read timeout: %w", err), port.Close())
		}
	}
	logger.Infof("opened %s at %d baud", cfg.Port, cfg.Baudrate)
	return NewSerialLink(cfg.Port, port, logger), nil
}

// NewSerialLink wraps an already open port.
func NewSerialLink(name string, port io.ReadWriteCloser, logger logging.Logger) *SerialLink {
	return &SerialLink{
		name:    name,
		logger:  logger,
		port:    port,
		workers: goutils.NewBackgroundStoppableWorkers(),
	}
}

// Name returns the port name.
func (l *SerialLink) Name() string {
	return l.name
}

// Start reads lines in the background and hands each to handler.
func (l *SerialLink) Start(handler LineHandler) {
	l.workers.Add(func(ctx context.Context) {
		l.readLoop(ctx, handler)
	})
}

func (l *SerialLink) readLoop(ctx context.Context, handler LineHandler) {
	buf := make([]byte, 256)
	var partial []byte
	for ctx.Err() == nil {
		n, err := l.port.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				i := bytes.IndexByte(partial, '\n')
				if i < 0 {
					break
				}
				line := strings.TrimRight(string(partial[:i]), "\r")
				partial = partial[i+1:]
				if line != "" {
					handler.HandleLine(line)
				}
			}
		}
		if err != nil {
			if l.closing.Load() || errors.Is(err, io.EOF) {
				return
			}
			l.logger.Warnf("read from %s failed: %v", l.name, err)
			l.errMu.Lock()
			l.readErr = err
			l.errMu.Unlock()
			return
		}
	}
}

// WriteLine sends line followed by a newline.
func (l *SerialLink) WriteLine(line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.closing.Load() {
		return fmt.Errorf("serial link %s is closed", l.name)
	}
	l.logger.Debugf("-> %s", line)
	if _, err := io.WriteString(l.port, line+"\n"); err != nil {
		return fmt.Errorf("failed to write to %s: %w", l.name, err)
	}
	return nil
}

// Close closes the port and waits for the reader to stop. It also reports
// the error that stopped the reader early, if any.
func (l *SerialLink) Close() error {
	if l.closing.Swap(true) {
		return nil
	}
	closeErr := l.port.Close()
	l.workers.Stop()

	l.errMu.Lock()
	defer l.errMu.Unlock()
	return multierr.Combine(closeErr, l.readErr)
}
