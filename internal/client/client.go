// Package client authenticates against a charon server over UDP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/proto"
	"github.com/wolfeidau/charonauth/internal/srp"
)

var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrOutdatedProtocol    = errors.New("server does not speak this protocol version")
	ErrWillNotAuth         = errors.New("server refused to authenticate user")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrVerifierUnsafe      = errors.New("server rejected client ephemeral")
	ErrServerProofMismatch = errors.New("server proof mismatch")
)

// errRetry marks conditions where a fresh handshake may succeed.
var errRetry = errors.New("transient failure")

// Config holds common client configuration
type Config struct {
	// Server is the host:port of the charon server.
	Server string

	// Timeout bounds the wait for each reply.
	Timeout time.Duration

	// MaxTries bounds full handshake attempts.
	MaxTries uint

	// Group is the SRP group. Default: srp.Group2048
	Group *srp.Group
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Server:   "127.0.0.1:16666",
		Timeout:  2 * time.Second,
		MaxTries: 3,
		Group:    srp.Group2048,
	}
}

// Result describes a completed handshake.
type Result struct {
	Session    uint32
	Username   string // canonical casing from the server
	SessionKey []byte
	Attempts   int
}

// Client runs handshakes against one server.
type Client struct {
	cfg Config
}

// New creates a Client. Zero fields in cfg take their DefaultConfig values.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Server == "" {
		cfg.Server = def.Server
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	if cfg.Group == nil {
		cfg.Group = def.Group
	}
	return &Client{cfg: cfg}
}

// Authenticate performs negotiate, ephemeral and proof, verifying the
// server's proof. Lost datagrams, expired sessions and TRY_LATER replies
// restart the handshake with backoff; rejections are returned immediately.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Result, error) {
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond

	res, err := backoff.Retry(ctx, func() (*Result, error) {
		attempts++
		res, err := c.handshake(ctx, username, password)
		if err != nil && !errors.Is(err, errRetry) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("next_retry", next).Msg("Handshake failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}

	res.Attempts = attempts
	return res, nil
}

func (c *Client) handshake(ctx context.Context, username, password string) (*Result, error) {
	conn, err := net.Dial("udp", c.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.cfg.Server, err)
	}
	defer conn.Close()

	reply, err := c.exchange(ctx, conn, &proto.ClientNegotiate{Version: proto.ProtocolVersion, Username: username})
	if err != nil {
		return nil, err
	}

	var negotiated *proto.ServerNegotiateReply
	switch p := reply.(type) {
	case *proto.ServerNegotiateReply:
		negotiated = p
	case *proto.UserError:
		return nil, userError(p)
	default:
		return nil, fmt.Errorf("%w: unexpected %s reply to negotiate", errRetry, reply.Tag())
	}

	secret, err := srp.NewSecret()
	if err != nil {
		return nil, err
	}
	srpClient, err := srp.NewClient(c.cfg.Group, negotiated.Salt, srp.Identity(username), []byte(password), secret)
	if err != nil {
		return nil, err
	}

	reply, err = c.exchange(ctx, conn, &proto.ClientEphemeral{Session: negotiated.Session, Ephemeral: srpClient.Ephemeral()})
	if err != nil {
		return nil, err
	}

	switch p := reply.(type) {
	case *proto.ServerEphemeralReply:
		if err := srpClient.SetServerEphemeral(p.Ephemeral); err != nil {
			return nil, fmt.Errorf("server ephemeral rejected: %w", err)
		}
	case *proto.SessionError:
		return nil, sessionError(p)
	default:
		return nil, fmt.Errorf("%w: unexpected %s reply to ephemeral", errRetry, reply.Tag())
	}

	reply, err = c.exchange(ctx, conn, &proto.ClientProof{Session: negotiated.Session, Proof: srpClient.Proof()})
	if err != nil {
		return nil, err
	}

	switch p := reply.(type) {
	case *proto.ServerProofReply:
		if err := srpClient.VerifyServerProof(p.Proof); err != nil {
			return nil, ErrServerProofMismatch
		}
	case *proto.SessionError:
		return nil, sessionError(p)
	default:
		return nil, fmt.Errorf("%w: unexpected %s reply to proof", errRetry, reply.Tag())
	}

	return &Result{
		Session:    negotiated.Session,
		Username:   negotiated.Username,
		SessionKey: srpClient.SessionKey(),
	}, nil
}

// exchange sends one packet and waits for a decodable reply. Undecodable
// datagrams are skipped.
func (c *Client) exchange(ctx context.Context, conn net.Conn, p proto.Packet) (proto.Packet, error) {
	if _, err := conn.Write(p.Encode()); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", p.Tag(), err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: no reply to %s", errRetry, p.Tag())
			}
			return nil, fmt.Errorf("%w: %v", errRetry, err)
		}

		reply, err := proto.Decode(buf[:n])
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring undecodable reply")
			continue
		}
		return reply, nil
	}
}

func userError(p *proto.UserError) error {
	switch p.Code {
	case proto.UserNoExist:
		return fmt.Errorf("%w: %q", ErrUnknownUser, p.Username)
	case proto.UserOutdatedProtocol:
		return ErrOutdatedProtocol
	case proto.UserWillNotAuth:
		return ErrWillNotAuth
	default:
		return fmt.Errorf("%w: server busy (%s)", errRetry, p.Code)
	}
}

func sessionError(p *proto.SessionError) error {
	switch p.Code {
	case proto.SessionAuthFailed:
		return ErrAuthFailed
	case proto.SessionVerifierUnsafe:
		return ErrVerifierUnsafe
	default:
		return fmt.Errorf("%w: session %d %s", errRetry, p.Session, p.Code)
	}
}
