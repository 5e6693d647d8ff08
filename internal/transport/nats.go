package transport

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/bridgerelay/coordinator/internal/threshold"
)

// NATS is the production SignatureTransport, used when validators run as
// separate processes (possibly separate machines). One subject per scheme
// deployment keeps partials from unrelated bridges apart.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("bridge-coordinator"))
	if err != nil {
		return nil, errors.Wrap(err, "transport: connect nats")
	}
	return &NATS{conn: conn, subject: subject}, nil
}

// wireMessage is Message's JSON-safe encoding; big.Int fields marshal as
// decimal strings so values survive round-trip without precision loss.
type wireMessage struct {
	SessionID   string `json:"session_id"`
	ValidatorID string `json:"validator_id"`
	R           string `json:"r"`
	S           string `json:"s"`
	PartialVal  string `json:"partial_validator_id"`
	CreatedAt   int64  `json:"created_at_unix"`
}

func (t *NATS) Broadcast(_ context.Context, msg Message) error {
	encoded, err := json.Marshal(wireMessage{
		SessionID:   msg.SessionID,
		ValidatorID: string(msg.ValidatorID),
		R:           msg.Partial.R.String(),
		S:           msg.Partial.S.String(),
		PartialVal:  string(msg.Partial.ValidatorID),
		CreatedAt:   msg.Partial.CreatedAt.Unix(),
	})
	if err != nil {
		return errors.Wrap(err, "transport: marshal partial")
	}
	return errors.Wrap(t.conn.Publish(t.subject, encoded), "transport: publish partial")
}

func (t *NATS) Subscribe(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, 64)
	sub, err := t.conn.Subscribe(t.subject, func(m *nats.Msg) {
		var wm wireMessage
		if err := json.Unmarshal(m.Data, &wm); err != nil {
			return
		}
		r, rok := new(big.Int).SetString(wm.R, 10)
		s, sok := new(big.Int).SetString(wm.S, 10)
		if !rok || !sok {
			return
		}
		msg := Message{
			SessionID:   wm.SessionID,
			ValidatorID: threshold.ValidatorID(wm.ValidatorID),
			Partial: threshold.PartialSignature{
				ValidatorID: threshold.ValidatorID(wm.PartialVal),
				SessionID:   wm.SessionID,
				R:           r,
				S:           s,
				CreatedAt:   time.Unix(wm.CreatedAt, 0),
			},
		}
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "transport: subscribe")
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		close(out)
	}()
	return out, nil
}

func (t *NATS) Close() error {
	t.conn.Close()
	return nil
}

var _ SignatureTransport = (*NATS)(nil)
