package logger

import (
	"context"
	"net/netip"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// DatagramFunc handles one inbound datagram and returns the reply, or nil
// for no reply.
type DatagramFunc func(ctx context.Context, datagram []byte, from netip.AddrPort) ([]byte, error)

// Datagrams attaches a per-datagram logger to the context and logs the
// outcome of each handled datagram.
type Datagrams struct {
	logger zerolog.Logger
	worker int
}

func NewDatagrams(logger zerolog.Logger, worker int) *Datagrams {
	return &Datagrams{logger: logger, worker: worker}
}

func (d *Datagrams) Wrap(next DatagramFunc) DatagramFunc {
	return func(ctx context.Context, datagram []byte, from netip.AddrPort) ([]byte, error) {
		started := time.Now()

		ctx = d.logger.With().
			Str("peer", from.String()).
			Int("worker", d.worker).
			Logger().WithContext(ctx)

		reply, err := next(ctx, datagram, from)
		if err != nil {
			zerolog.Ctx(ctx).Error().
				Err(err).
				Dur("duration", time.Since(started)).
				Msg("datagram failed")

			return reply, err
		}

		zerolog.Ctx(ctx).Debug().
			Int("in_bytes", len(datagram)).
			Int("out_bytes", len(reply)).
			Dur("duration", time.Since(started)).
			Msg("datagram handled")

		return reply, nil
	}
}
