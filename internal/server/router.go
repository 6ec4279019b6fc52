package server

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/proto"
	"github.com/wolfeidau/charonauth/internal/session"
	"github.com/wolfeidau/charonauth/internal/srp"
	"github.com/wolfeidau/charonauth/internal/store"
	"github.com/wolfeidau/charonauth/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var errNotCommitted = fmt.Errorf("%w: no ephemeral committed", store.ErrSessionNotFound)

// Recorder receives an action after each successful authentication. It must
// not block.
type Recorder interface {
	Record(action *models.Action) bool
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// Group is the SRP group. Default: srp.Group2048
	Group *srp.Group

	// SessionTimeout bounds the age of a session at lookup. Default: 30s
	SessionTimeout time.Duration

	// Recorder receives auth actions. Optional.
	Recorder Recorder
}

// Router drives one datagram through a handshake step and produces at most
// one reply.
type Router struct {
	sessions *session.Manager
	group    *srp.Group
	timeout  time.Duration
	recorder Recorder
	now      func() time.Time
}

// NewRouter creates a Router over a session manager.
func NewRouter(sessions *session.Manager, cfg RouterConfig) *Router {
	if cfg.Group == nil {
		cfg.Group = srp.Group2048
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	return &Router{
		sessions: sessions,
		group:    cfg.Group,
		timeout:  cfg.SessionTimeout,
		recorder: cfg.Recorder,
		now:      time.Now,
	}
}

// Route handles one inbound datagram. It returns the encoded reply, or nil
// when the datagram is dropped. A non-nil error is fatal: the caller must
// stop serving.
func (r *Router) Route(ctx context.Context, datagram []byte, from netip.AddrPort) ([]byte, error) {
	started := time.Now()
	metrics := telemetry.GetMetrics()
	metrics.DatagramsReceivedTotal.Add(ctx, 1)

	tag, ok := proto.PeekTag(datagram)
	if !ok {
		r.drop(ctx, "short", nil)
		return nil, nil
	}

	var (
		reply proto.Packet
		err   error
	)

	switch tag {
	case proto.TagClientNegotiate:
		reply, err = r.negotiate(ctx, datagram)
	case proto.TagClientEphemeral:
		reply, err = r.ephemeral(ctx, datagram)
	case proto.TagClientProof:
		reply, err = r.proof(ctx, datagram, from)
	case proto.TagServerNegotiateReply,
		proto.TagServerEphemeralReply,
		proto.TagServerProofReply,
		proto.TagUserError,
		proto.TagSessionError:
		r.drop(ctx, "server_tag", nil)
		return nil, nil
	default:
		r.drop(ctx, "unknown_tag", nil)
		return nil, nil
	}

	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}

	metrics.RepliesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("packet", reply.Tag().String())))
	metrics.HandleDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000,
		metric.WithAttributes(attribute.String("step", tag.String())))

	return reply.Encode(), nil
}

func (r *Router) negotiate(ctx context.Context, datagram []byte) (proto.Packet, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "charon.negotiate")
	defer span.End()

	req, err := proto.DecodeClientNegotiate(datagram)
	if err != nil {
		r.drop(ctx, "malformed", err)
		return nil, nil
	}

	if req.Version != proto.ProtocolVersion {
		zerolog.Ctx(ctx).Info().
			Uint8("version", req.Version).
			Str("username", req.Username).
			Msg("Unsupported protocol version")
		return &proto.UserError{Code: proto.UserOutdatedProtocol, Username: req.Username}, nil
	}

	rec, err := r.sessions.Create(ctx, req.Username)
	if err != nil {
		return r.userFault(ctx, span, req.Username, err)
	}

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("charon.session", int64(rec.Session.SessionID)))

	zerolog.Ctx(ctx).Debug().
		Uint32("session", rec.Session.SessionID).
		Str("username", rec.User.Username).
		Msg("Session created")

	return &proto.ServerNegotiateReply{
		Version:  proto.ProtocolVersion,
		Session:  rec.Session.SessionID,
		Salt:     rec.User.Salt,
		Username: rec.User.Username,
	}, nil
}

func (r *Router) ephemeral(ctx context.Context, datagram []byte) (proto.Packet, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "charon.ephemeral")
	defer span.End()

	req, err := proto.DecodeClientEphemeral(datagram)
	if err != nil {
		r.drop(ctx, "malformed", err)
		return nil, nil
	}
	span.SetAttributes(attribute.Int64("charon.session", int64(req.Session)))

	rec, err := r.sessions.Lookup(ctx, req.Session, r.timeout)
	if err != nil {
		return r.sessionFault(ctx, span, req.Session, err)
	}

	secret, err := srp.NewSecret()
	if err != nil {
		return r.sessionFault(ctx, span, req.Session, err)
	}

	serverEphemeral, err := r.group.ServerEphemeral(handshake(rec.User, secret, req.Ephemeral))
	if err != nil {
		return r.sessionFault(ctx, span, req.Session, err)
	}

	if _, err := r.sessions.CommitEphemeral(ctx, req.Session, req.Ephemeral, secret); err != nil {
		return r.sessionFault(ctx, span, req.Session, err)
	}

	return &proto.ServerEphemeralReply{Session: req.Session, Ephemeral: serverEphemeral}, nil
}

func (r *Router) proof(ctx context.Context, datagram []byte, from netip.AddrPort) (proto.Packet, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "charon.proof")
	defer span.End()

	req, err := proto.DecodeClientProof(datagram)
	if err != nil {
		r.drop(ctx, "malformed", err)
		return nil, nil
	}
	span.SetAttributes(attribute.Int64("charon.session", int64(req.Session)))

	rec, err := r.sessions.Lookup(ctx, req.Session, r.timeout)
	if err != nil {
		return r.sessionFault(ctx, span, req.Session, err)
	}
	if !rec.Session.HasEphemeral() {
		return r.sessionFault(ctx, span, req.Session, errNotCommitted)
	}

	serverProof, err := r.group.VerifyProof(handshake(rec.User, rec.Session.Secret, rec.Session.Ephemeral), req.Proof)
	if err != nil {
		return r.sessionFault(ctx, span, req.Session, err)
	}

	telemetry.GetMetrics().AuthSuccessTotal.Add(ctx, 1)
	zerolog.Ctx(ctx).Info().
		Uint32("session", req.Session).
		Str("user_id", rec.User.UserID.String()).
		Msg("Authenticated")

	r.record(ctx, rec.User, from)

	return &proto.ServerProofReply{Session: req.Session, Proof: serverProof}, nil
}

func (r *Router) record(ctx context.Context, user *models.User, from netip.AddrPort) {
	if r.recorder == nil {
		return
	}

	sourceIP := ""
	if from.IsValid() {
		sourceIP = from.Addr().Unmap().String()
	}

	action, err := models.NewAuthAction(user.UserID, sourceIP, r.now().UTC())
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to build auth action")
		return
	}
	r.recorder.Record(action)
}

func handshake(user *models.User, secret, clientEphemeral []byte) srp.Handshake {
	return srp.Handshake{
		Salt:            user.Salt,
		Identity:        srp.Identity(user.Username),
		Verifier:        user.Verifier,
		Secret:          secret,
		ClientEphemeral: clientEphemeral,
	}
}

// userFault answers a negotiate failure, correlated by username.
func (r *Router) userFault(ctx context.Context, span trace.Span, username string, err error) (proto.Packet, error) {
	fault := r.fault(ctx, span, err)

	switch fault {
	case FaultIgnorable:
		r.drop(ctx, "malformed", err)
		return nil, nil
	case FaultUserNotFound:
		return &proto.UserError{Code: proto.UserNoExist, Username: username}, nil
	case FaultTryLater:
		return &proto.UserError{Code: proto.UserTryLater, Username: username}, nil
	case FaultSessionNotFound, FaultVerifierUnsafe, FaultAuthFailed:
		return nil, fmt.Errorf("negotiate produced %s fault: %w", fault, err)
	default:
		return nil, fmt.Errorf("negotiate failed: %w", err)
	}
}

// sessionFault answers an ephemeral or proof failure, correlated by session.
func (r *Router) sessionFault(ctx context.Context, span trace.Span, sessionID uint32, err error) (proto.Packet, error) {
	fault := r.fault(ctx, span, err)

	switch fault {
	case FaultIgnorable:
		r.drop(ctx, "malformed", err)
		return nil, nil
	case FaultUserNotFound, FaultSessionNotFound:
		return &proto.SessionError{Code: proto.SessionNoExist, Session: sessionID}, nil
	case FaultVerifierUnsafe:
		return &proto.SessionError{Code: proto.SessionVerifierUnsafe, Session: sessionID}, nil
	case FaultAuthFailed:
		return &proto.SessionError{Code: proto.SessionAuthFailed, Session: sessionID}, nil
	case FaultTryLater:
		return &proto.SessionError{Code: proto.SessionTryLater, Session: sessionID}, nil
	default:
		return nil, fmt.Errorf("session %d: %w", sessionID, err)
	}
}

func (r *Router) fault(ctx context.Context, span trace.Span, err error) Fault {
	fault := classify(err)
	metrics := telemetry.GetMetrics()

	span.SetAttributes(attribute.String("charon.fault", fault.String()))
	metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("fault", fault.String())))

	switch fault {
	case FaultFatal:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case FaultIgnorable:
	case FaultAuthFailed, FaultVerifierUnsafe:
		metrics.AuthFailureTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", fault.String())))
		fallthrough
	default:
		zerolog.Ctx(ctx).Info().
			Err(err).
			Str("fault", fault.String()).
			Msg("Handshake step rejected")
	}

	return fault
}

func (r *Router) drop(ctx context.Context, reason string, err error) {
	telemetry.GetMetrics().DatagramsDroppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))

	zerolog.Ctx(ctx).Debug().
		Err(err).
		Str("reason", reason).
		Msg("Datagram dropped")
}
