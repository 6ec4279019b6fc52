package server

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/charonauth/internal/logger"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
)

const maxDatagramSize = 2048

// Config configures the UDP listener.
type Config struct {
	// Listen is the udp4 address to bind. Default: 0.0.0.0:16666
	Listen string

	// Workers is the number of goroutines reading from the socket. Default: 1
	Workers int

	// MaxInFlight bounds datagrams being handled at once. Default: 256
	MaxInFlight int

	// BatchSize is the number of datagrams read or written per syscall.
	// Default: 16
	BatchSize int
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "0.0.0.0:16666"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 256
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
}

type outbound struct {
	payload []byte
	to      netip.AddrPort
}

// Server reads datagrams from one UDP socket and hands each to a handler,
// writing back whatever reply the handler returns.
type Server struct {
	cfg     Config
	handler logger.DatagramFunc
	log     zerolog.Logger

	conn *net.UDPConn
	pc   *ipv4.PacketConn

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer binds the socket. Serve must be called to start handling.
func NewServer(cfg Config, handler logger.DatagramFunc, log zerolog.Logger) (*Server, error) {
	cfg.applyDefaults()

	addr, err := net.ResolveUDPAddr("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", cfg.Listen, err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Listen, err)
	}

	log.Info().
		Str("addr", conn.LocalAddr().String()).
		Int("workers", cfg.Workers).
		Int("max_in_flight", cfg.MaxInFlight).
		Msg("Listening for datagrams")

	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		conn:    conn,
		pc:      ipv4.NewPacketConn(conn),
		stopped: make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Stop makes Serve return after in-flight datagrams finish and their replies
// are sent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Serve handles datagrams until ctx ends, Stop is called, or the handler
// returns an error. The handler error is returned; a normal stop returns nil.
//
// Shutdown stops the readers first, waits for running handlers, then flushes
// their replies before the socket is closed. Handlers see a context that is
// only cancelled by a fatal handler error, not by ctx or Stop.
func (s *Server) Serve(ctx context.Context) error {
	hctx, fail := context.WithCancelCause(context.WithoutCancel(ctx))
	defer fail(nil)

	quit := make(chan struct{})
	var quitOnce sync.Once
	shutdown := func() {
		quitOnce.Do(func() {
			close(quit)
			// unblocks ReadBatch in every worker
			_ = s.conn.SetReadDeadline(time.Now())
		})
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.stopped:
		case <-hctx.Done():
		case <-quit:
		}
		shutdown()
	}()

	handlers := new(errgroup.Group)
	handlers.SetLimit(s.cfg.MaxInFlight)

	out := make(chan outbound, s.cfg.MaxInFlight)
	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writeLoop(out)
	}()

	readers := new(errgroup.Group)
	for worker := range s.cfg.Workers {
		handle := logger.NewDatagrams(s.log, worker).Wrap(s.handler)

		readers.Go(func() error {
			err := s.readLoop(hctx, quit, handle, handlers, out, fail)
			if err != nil {
				shutdown()
			}
			return err
		})
	}

	rerr := readers.Wait()
	shutdown()
	herr := handlers.Wait()

	close(out)
	<-written
	_ = s.conn.Close()

	if herr != nil {
		return herr
	}
	return rerr
}

func (s *Server) readLoop(ctx context.Context, quit <-chan struct{}, handle logger.DatagramFunc, handlers *errgroup.Group, out chan<- outbound, fail context.CancelCauseFunc) error {
	msgs := make([]ipv4.Message, s.cfg.BatchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, maxDatagramSize)}
	}

	for {
		n, err := s.pc.ReadBatch(msgs, 0)
		if err != nil {
			select {
			case <-quit:
				return nil
			default:
			}
			return fmt.Errorf("failed to read datagrams: %w", err)
		}

		for i := range n {
			msg := &msgs[i]
			addr, ok := msg.Addr.(*net.UDPAddr)
			if !ok {
				continue
			}

			datagram := make([]byte, msg.N)
			copy(datagram, msg.Buffers[0][:msg.N])
			from := addr.AddrPort()
			from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

			// blocks while MaxInFlight datagrams are being handled
			handlers.Go(func() error {
				reply, err := handle(ctx, datagram, from)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fail(err)
					return err
				}
				if reply != nil {
					// out is drained until every handler has returned
					out <- outbound{payload: reply, to: from}
				}
				return nil
			})
		}
	}
}

// writeLoop sends replies until out is closed.
func (s *Server) writeLoop(out <-chan outbound) {
	msgs := make([]ipv4.Message, 0, s.cfg.BatchSize)

	for o := range out {
		msgs = append(msgs[:0], message(o))

	drain:
		for len(msgs) < cap(msgs) {
			select {
			case o, ok := <-out:
				if !ok {
					break drain
				}
				msgs = append(msgs, message(o))
			default:
				break drain
			}
		}

		for sent := 0; sent < len(msgs); {
			n, err := s.pc.WriteBatch(msgs[sent:], 0)
			if err != nil {
				// a failed send loses only that reply; clients resend
				s.log.Warn().
					Err(err).
					Str("peer", msgs[sent].Addr.String()).
					Msg("Failed to send reply")
				sent++
				continue
			}
			if n == 0 {
				break
			}
			sent += n
		}
	}
}

func message(o outbound) ipv4.Message {
	return ipv4.Message{
		Buffers: [][]byte{o.payload},
		Addr:    net.UDPAddrFromAddrPort(o.to),
	}
}
