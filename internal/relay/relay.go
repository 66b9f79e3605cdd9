package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mitmlab.org/internal/audit"
	"mitmlab.org/internal/channels"
	"mitmlab.org/internal/chat"
	"mitmlab.org/internal/ids"
	"mitmlab.org/internal/obs"
	"mitmlab.org/internal/session"
)

// Publisher is the slice of the channel registry the relay needs.
type Publisher interface {
	Publish(name, event string, payload any) int
}

// Flag is the interception state.
type Flag interface {
	IsActive() bool
	SetActive(active bool)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, action, details string, severity chat.Severity) (chat.LogEntry, error)
}

// RoleChecker answers observer-role membership.
type RoleChecker interface {
	IsObserver(conn session.Conn) bool
}

// Relay routes inbound messages through metadata logging, the interception
// branch, persistence and delivery.
type Relay struct {
	pub   Publisher
	flag  Flag
	audit AuditRecorder
	store chat.MessageStore
	roles RoleChecker
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// New wires a relay.
func New(pub Publisher, flag Flag, sink AuditRecorder, store chat.MessageStore, roles RoleChecker, opts ...Option) *Relay {
	r := &Relay{
		pub:   pub,
		flag:  flag,
		audit: sink,
		store: store,
		roles: roles,
		now:   func() time.Time { return time.Now().UTC() },
		log:   obs.Component("relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send handles a send_message event.
func (r *Relay) Send(ctx context.Context, conn session.Conn, env chat.Envelope) Result {
	now := r.now()

	r.pub.Publish(channels.Observer, EventMetadataLog, MetadataLog{
		SenderID:    env.SenderID,
		RecipientID: env.RecipientID,
		RoomID:      env.RoomID,
		Size:        env.Size(),
		Timestamp:   now,
	})

	details := fmt.Sprintf("Room %s: %d bytes", env.RoomID, env.Size())
	if _, err := r.audit.Record(ctx, audit.ActionTraffic, details, chat.SeverityInfo); err != nil {
		r.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("traffic audit dropped")
	}

	// Read once: a concurrent toggle must not split this message across branches.
	if r.flag.IsActive() {
		packetID := ids.Correlation()
		r.pub.Publish(channels.Observer, EventInterceptedPacket, InterceptedPacket{
			PacketID:         packetID,
			RoomID:           env.RoomID,
			EncryptedContent: env.EncryptedContent,
			IV:               env.IV,
			WrappedKey:       env.WrappedKey,
			SenderID:         env.SenderID,
			RecipientID:      env.RecipientID,
			Status:           "intercepted",
			Timestamp:        now,
		})
		r.log.Warn().Str("packet_id", packetID).Str("room_id", env.RoomID).Msg("packet intercepted")
		return r.finish(Result{Outcome: OutcomeIntercepted, PacketID: packetID})
	}

	return r.finish(r.persistAndDeliver(ctx, env))
}

// Forward releases a (possibly tampered) message into normal delivery.
func (r *Relay) Forward(ctx context.Context, conn session.Conn, env chat.Envelope) Result {
	if !r.roles.IsObserver(conn) {
		return r.finish(Result{Outcome: OutcomeRejected, Err: ErrNotObserver})
	}
	res := r.persistAndDeliver(ctx, env)
	if res.OK() {
		r.log.Warn().Str("conn_id", conn.ID()).Str("message_id", res.MessageID).Str("room_id", env.RoomID).Msg("intercepted packet forwarded")
	}
	return r.finish(res)
}

// Inject delivers a synthesized message to a room without persisting it.
func (r *Relay) Inject(ctx context.Context, conn session.Conn, env chat.Envelope) Result {
	if !r.roles.IsObserver(conn) {
		return r.finish(Result{Outcome: OutcomeRejected, Err: ErrNotObserver})
	}
	now := r.now()
	packetID := ids.Correlation()

	r.pub.Publish(channels.Room(env.RoomID), EventReceiveMessage, ReceiveMessage{
		ID:               packetID,
		RoomID:           env.RoomID,
		EncryptedContent: env.EncryptedContent,
		IV:               env.IV,
		WrappedKey:       env.WrappedKey,
		SenderID:         env.SenderID,
		SenderName:       SpoofedSenderLabel,
		RecipientID:      env.RecipientID,
		CreatedAt:        now,
	})
	r.pub.Publish(channels.Observer, EventAttackLog, AttackLog{
		Type:      "INJECTION",
		PacketID:  packetID,
		RoomID:    env.RoomID,
		SenderID:  env.SenderID,
		Size:      env.Size(),
		Timestamp: now,
	})
	r.pub.Publish(channels.Admin, EventSecurityAlert, SecurityAlert{
		Level:     "high",
		Action:    "PACKET_INJECTION",
		Details:   fmt.Sprintf("Injected packet into room %s by connection %s", env.RoomID, ids.Short(conn.ID())),
		RoomID:    env.RoomID,
		SenderID:  env.SenderID,
		Timestamp: now,
	})
	r.log.Warn().Str("conn_id", conn.ID()).Str("packet_id", packetID).Str("room_id", env.RoomID).Msg("packet injected")
	return r.finish(Result{Outcome: OutcomeInjected, PacketID: packetID})
}

// ReportTampering records a suspected attack and alerts admins.
func (r *Relay) ReportTampering(ctx context.Context, conn session.Conn, rep Report) Result {
	details := fmt.Sprintf("%s (reported by %s)", rep.Reason, ids.Short(conn.ID()))
	entry, err := r.audit.Record(ctx, audit.ActionMITMAlert, details, chat.SeverityError)
	if err != nil {
		r.log.Error().Err(err).Str("conn_id", conn.ID()).Msg("tampering report dropped")
		return Result{Outcome: OutcomeDropped, Err: err}
	}
	r.pub.Publish(channels.Admin, EventSecurityAlert, SecurityAlert{
		Level:     "high",
		Action:    entry.Action,
		ID:        entry.ID,
		Details:   entry.Details,
		RoomID:    rep.RoomID,
		SenderID:  rep.SenderID,
		Timestamp: entry.CreatedAt,
	})
	return Result{Outcome: OutcomeReported}
}

// Toggle switches interception on or off for observers.
func (r *Relay) Toggle(conn session.Conn, active bool) Result {
	if !r.roles.IsObserver(conn) {
		return Result{Outcome: OutcomeRejected, Err: ErrNotObserver}
	}
	r.flag.SetActive(active)
	return Result{Outcome: OutcomeToggled}
}

func (r *Relay) persistAndDeliver(ctx context.Context, env chat.Envelope) Result {
	msg, err := r.store.CreateMessage(ctx, env)
	if err != nil {
		if !errors.Is(err, chat.ErrPersistence) {
			err = fmt.Errorf("%w: create message: %w", chat.ErrPersistence, err)
		}
		r.log.Error().Err(err).Str("room_id", env.RoomID).Msg("message not persisted")
		return Result{Outcome: OutcomeDropped, Err: err}
	}

	sender, err := r.store.ResolveSenderDisplay(ctx, msg.SenderID)
	if err != nil {
		r.log.Warn().Err(err).Str("sender_id", msg.SenderID).Msg("sender display unresolved")
		sender = chat.SenderDisplay{Username: unknownSenderName}
	}

	r.pub.Publish(channels.Room(msg.RoomID), EventReceiveMessage, ReceiveMessage{
		ID:               msg.ID,
		RoomID:           msg.RoomID,
		EncryptedContent: msg.EncryptedContent,
		IV:               msg.IV,
		WrappedKey:       msg.WrappedKey,
		SenderID:         msg.SenderID,
		SenderName:       sender.Username,
		RecipientID:      msg.RecipientID,
		CreatedAt:        msg.CreatedAt,
	})
	if msg.HasRecipient() {
		r.pub.Publish(channels.Personal(msg.RecipientID), EventConversationUpdate, ConversationUpdate{
			RoomID:       msg.RoomID,
			MessageID:    msg.ID,
			SenderID:     msg.SenderID,
			SenderName:   sender.Username,
			SenderAvatar: sender.AvatarURL,
			CreatedAt:    msg.CreatedAt,
		})
	}
	r.log.Debug().Str("message_id", msg.ID).Str("room_id", msg.RoomID).Msg("message persisted")
	return Result{Outcome: OutcomeDelivered, MessageID: msg.ID}
}

// finish counts message-bearing results.
func (r *Relay) finish(res Result) Result {
	obs.MessagesTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res
}
