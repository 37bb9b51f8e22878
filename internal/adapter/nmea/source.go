package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"go.bug.st/serial"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/locationstream"
)

var (
	errNoFix      = errors.New("no valid gps fix within timeout")
	errPortClosed = errors.New("gps port closed")
)

type openFunc func(path string, mode *serial.Mode) (io.ReadCloser, error)

// Source reads RMC fixes from a serial GPS receiver.
// It implements locationstream.Source.
type Source struct {
	opts   PortOptions
	mode   *serial.Mode
	open   openFunc
	logger *slog.Logger
}

// NewSource validates opts. The port is opened by Watch.
func NewSource(opts PortOptions, logger *slog.Logger) (*Source, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, err
	}
	return &Source{
		opts:   normalized,
		mode:   mode,
		open:   openSerial,
		logger: logger,
	}, nil
}

func openSerial(path string, mode *serial.Mode) (io.ReadCloser, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Watch opens the port and streams fixes until ctx is cancelled. A missing
// or busy port, or a read failure, is reported as Unavailable and the port
// is reopened with backoff. Permission errors end the watch.
func (s *Source) Watch(ctx context.Context, opts locationstream.WatchOptions, emit locationstream.Emitter) error {
	var backoff locationstream.Backoff

	for {
		port, err := s.open(s.opts.Path, s.mode)
		if err != nil {
			le := classifyOpenError(err)
			if le.Kind == domain.ErrPermissionDenied {
				return le
			}
			s.logger.Warn("open gps port failed", "port", s.opts.Path, "error", err, "backoff", backoff.Current())
			emit.Error(le)
			if !backoff.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("gps port opened", "port", s.opts.Path, "baud_rate", s.opts.BaudRate)
		backoff.Reset()

		err = s.monitor(ctx, port, opts, emit)
		_ = port.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("gps port read failed", "port", s.opts.Path, "error", err)
		emit.Error(domain.NewLocationError(domain.ErrUnavailable, err))
		if !backoff.Wait(ctx) {
			return ctx.Err()
		}
	}
}

// monitor reads lines until ctx ends or the port fails.
func (s *Source) monitor(ctx context.Context, port io.Reader, opts locationstream.WatchOptions, emit locationstream.Emitter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan := bufio.NewScanner(port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErrChan <- scan.Err()
	}()

	var timer clockwork.Timer
	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer = domain.Clock().NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timeout:
			emit.Error(domain.NewLocationError(domain.ErrTimeout, errNoFix))
			timer.Reset(opts.Timeout)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if err != nil {
						return err
					}
					return errPortClosed
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			loc, ok := s.accept(line, opts.HighAccuracy)
			if !ok {
				continue
			}
			if timer != nil {
				timer.Reset(opts.Timeout)
			}
			emit.Fix(loc)
		}
	}
}

// accept parses one line and reports whether it carries a usable fix.
func (s *Source) accept(line string, highAccuracy bool) (domain.Location, bool) {
	rmc, err := ParseRMC(line)
	if err != nil {
		if !errors.Is(err, ErrNotRMC) {
			s.logger.Debug("skipping nmea line", "error", err)
		}
		return domain.Location{}, false
	}
	if !rmc.Valid {
		return domain.Location{}, false
	}
	if highAccuracy && !rmc.Accurate() {
		s.logger.Debug("skipping estimated fix", "mode", string(rmc.Mode))
		return domain.Location{}, false
	}
	return rmc.Location, true
}

// classifyOpenError maps go.bug.st/serial errors onto location error kinds.
func classifyOpenError(err error) *domain.LocationError {
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PermissionDenied || errors.Is(err, os.ErrPermission) {
		return domain.NewLocationError(domain.ErrPermissionDenied, err)
	}
	return domain.NewLocationError(domain.ErrUnavailable, fmt.Errorf("open gps port: %w", err))
}
