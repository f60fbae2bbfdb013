package asic

import (
	"errors"
	"fmt"

	"sflowd/internal/sflow"
)

var errCaptureTimeout = errors.New("capture read timeout")

// frameSource is one capture socket bound to an interface.
type frameSource interface {
	// read fills buf and returns the captured length, the on-wire length and
	// whether the frame was transmitted by the host. It returns
	// errCaptureTimeout when no frame arrived within the poll interval.
	read(buf []byte) (n, frameLen int, outgoing bool, err error)
	close() error
}

// startCapture opens one socket per port for f. On failure every socket
// opened so far is closed.
func (s *Switch) startCapture(f *filter) error {
	srcs := make([]frameSource, 0, len(s.ports))
	for _, p := range s.ports {
		src, err := openCapture(p.name)
		if err != nil {
			for _, opened := range srcs {
				opened.close()
			}
			return fmt.Errorf("opening capture on %s: %w", p.name, err)
		}
		srcs = append(srcs, src)
	}

	for i, p := range s.ports {
		f.wg.Add(1)
		go s.readFrames(f, p, srcs[i])
	}
	return nil
}

func (s *Switch) readFrames(f *filter, p *port, src frameSource) {
	defer f.wg.Done()
	defer src.close()

	log := s.log.With().Str("interface", p.name).Stringer("direction", f.dir).Logger()
	log.Debug().Msg("Capture reader started")

	buf := make([]byte, s.cfg.SnapLen)
	dec := newFrameDecoder()
	wantOutgoing := f.dir == sflow.FilterDestination
	for {
		select {
		case <-f.stop:
			log.Debug().Msg("Capture reader stopped")
			return
		default:
		}

		n, frameLen, outgoing, err := src.read(buf)
		if errors.Is(err, errCaptureTimeout) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("Capture read failed, reader exiting")
			return
		}
		if outgoing != wantOutgoing {
			continue
		}
		s.sampleFrame(p, f.dir, buf[:n], frameLen, dec)
	}
}
