package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mitmlab.org/internal/chat"
	"mitmlab.org/internal/relay"
)

// ErrValidation marks an inbound frame that failed decoding or validation.
var ErrValidation = errors.New("gateway: validation failed")

type joinRoomData struct {
	RoomID string `json:"room_id"`
}

type toggleData struct {
	Active *bool `json:"active"`
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing data", ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func required(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return v, nil
}

func validUUID(field, value string) error {
	if err := uuid.Validate(value); err != nil {
		return fmt.Errorf("%w: %s must be a uuid", ErrValidation, field)
	}
	return nil
}

func decodeRoom(data json.RawMessage) (string, error) {
	var d joinRoomData
	if err := decodeData(data, &d); err != nil {
		return "", err
	}
	return required("room_id", d.RoomID)
}

func decodeToggle(data json.RawMessage) (bool, error) {
	var d toggleData
	if err := decodeData(data, &d); err != nil {
		return false, err
	}
	if d.Active == nil {
		return false, fmt.Errorf("%w: active is required", ErrValidation)
	}
	return *d.Active, nil
}

// decodeEnvelope validates a message payload. Ciphertext fields are only
// checked for presence; they are relayed byte for byte.
func decodeEnvelope(data json.RawMessage) (chat.Envelope, error) {
	var env chat.Envelope
	if err := decodeData(data, &env); err != nil {
		return chat.Envelope{}, err
	}
	var err error
	if env.RoomID, err = required("room_id", env.RoomID); err != nil {
		return chat.Envelope{}, err
	}
	for _, f := range [...]struct{ name, value string }{
		{"encrypted_content", env.EncryptedContent},
		{"iv", env.IV},
		{"wrapped_key", env.WrappedKey},
	} {
		if _, err := required(f.name, f.value); err != nil {
			return chat.Envelope{}, err
		}
	}
	if env.SenderID, err = required("sender_id", env.SenderID); err != nil {
		return chat.Envelope{}, err
	}
	if err := validUUID("sender_id", env.SenderID); err != nil {
		return chat.Envelope{}, err
	}
	env.RecipientID = strings.TrimSpace(env.RecipientID)
	if env.RecipientID != "" {
		if err := validUUID("recipient_id", env.RecipientID); err != nil {
			return chat.Envelope{}, err
		}
	}
	return env, nil
}

func decodeReport(data json.RawMessage) (relay.Report, error) {
	var rep relay.Report
	if err := decodeData(data, &rep); err != nil {
		return relay.Report{}, err
	}
	var err error
	if rep.RoomID, err = required("room_id", rep.RoomID); err != nil {
		return relay.Report{}, err
	}
	if rep.Reason, err = required("reason", rep.Reason); err != nil {
		return relay.Report{}, err
	}
	rep.SenderID = strings.TrimSpace(rep.SenderID)
	if rep.SenderID != "" {
		if err := validUUID("sender_id", rep.SenderID); err != nil {
			return relay.Report{}, err
		}
	}
	return rep, nil
}
