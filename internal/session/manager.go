package session

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"mitmlab.org/internal/auth"
	"mitmlab.org/internal/channels"
	"mitmlab.org/internal/obs"
)

// ErrAdmissionRejected is returned when a credential fails verification.
// The connection has already been closed when it is returned.
var ErrAdmissionRejected = errors.New("session: admission rejected")

// Conn is a live transport connection.
type Conn interface {
	channels.Subscriber
	Close() error
}

// CredentialVerifier checks a handshake credential.
type CredentialVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// StatusSnapshotter sends the current interception state to one connection.
type StatusSnapshotter interface {
	Snapshot(sub channels.Subscriber) error
}

// Manager owns connection admission, channel joins and disconnect cleanup.
// Role joins are deliberately unauthenticated.
type Manager struct {
	reg      *channels.Registry
	verifier CredentialVerifier
	status   StatusSnapshotter
	log      zerolog.Logger
}

// NewManager wires a manager.
func NewManager(reg *channels.Registry, verifier CredentialVerifier, status StatusSnapshotter) *Manager {
	return &Manager{reg: reg, verifier: verifier, status: status, log: obs.Component("session")}
}

// Admit verifies the credential and subscribes the connection to its personal
// channel. On failure the connection is closed without a response.
func (m *Manager) Admit(conn Conn, credential string) (auth.Identity, error) {
	id, err := m.verifier.Verify(credential)
	if err != nil {
		_ = conn.Close()
		m.log.Info().Str("conn_id", conn.ID()).Msg("admission rejected")
		return auth.Identity{}, ErrAdmissionRejected
	}
	m.reg.Subscribe(conn, channels.Personal(id.Subject))
	obs.ConnectionsActive.Inc()
	m.log.Info().Str("conn_id", conn.ID()).Str("user_id", id.Subject).Msg("client admitted")
	return id, nil
}

// JoinRoom subscribes the connection to a room. Room ids act as shared secrets.
func (m *Manager) JoinRoom(conn Conn, roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}
	m.reg.Subscribe(conn, channels.Room(roomID))
	m.log.Debug().Str("conn_id", conn.ID()).Str("room_id", roomID).Msg("joined room")
}

// JoinObserver subscribes the connection to the observer role and sends it
// the current interception state.
func (m *Manager) JoinObserver(conn Conn) {
	m.reg.Subscribe(conn, channels.Observer)
	m.log.Warn().Str("conn_id", conn.ID()).Msg("observer monitoring traffic")
	if err := m.status.Snapshot(conn); err != nil {
		m.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("status snapshot not delivered")
	}
}

// JoinAdmin subscribes the connection to the admin role.
func (m *Manager) JoinAdmin(conn Conn) {
	m.reg.Subscribe(conn, channels.Admin)
	m.log.Info().Str("conn_id", conn.ID()).Msg("admin joined")
}

// IsObserver reports whether the connection holds the observer role.
func (m *Manager) IsObserver(conn Conn) bool {
	return m.reg.IsSubscribed(conn, channels.Observer)
}

// Disconnect removes the connection from every channel. It must be called
// only for admitted connections.
func (m *Manager) Disconnect(conn Conn) {
	m.reg.UnsubscribeAll(conn)
	obs.ConnectionsActive.Dec()
	m.log.Info().Str("conn_id", conn.ID()).Msg("client disconnected")
}
