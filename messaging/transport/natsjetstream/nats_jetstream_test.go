package natsjetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/logging"
	"snaptrail/messaging"
)

type fakeAck struct{ acks, naks int }

func (f *fakeAck) Ack(...nats.AckOpt) error { f.acks++; return nil }
func (f *fakeAck) Nak(...nats.AckOpt) error { f.naks++; return nil }

func TestProcessAcksOrNaks(t *testing.T) {
	tr := NewTransport(Config{Logger: logging.NewNoopLogger()})
	fail := true
	require.NoError(t, tr.Subscribe("audit.capture", messaging.HandlerFunc(func(context.Context, *messaging.Message) error {
		if fail {
			return errors.New("store unavailable")
		}
		return nil
	})))

	data, err := messaging.Encode(messaging.NewMessage("audit.capture", []byte(`{}`)))
	require.NoError(t, err)

	a := &fakeAck{}
	tr.process(context.Background(), "audit.capture", data, a)
	assert.Equal(t, 1, a.naks)
	assert.Equal(t, 0, a.acks)

	fail = false
	tr.process(context.Background(), "audit.capture", data, a)
	assert.Equal(t, 1, a.acks)
}

func TestProcessAcksUndecodable(t *testing.T) {
	tr := NewTransport(Config{Logger: logging.NewNoopLogger()})
	a := &fakeAck{}
	tr.process(context.Background(), "x", []byte("{"), a)
	assert.Equal(t, 1, a.acks)
}

func TestDefaultsAndNames(t *testing.T) {
	tr := NewTransport(Config{Retention: "limits", Replicas: 3})
	assert.Equal(t, "snaptrail.audit.capture", tr.subjectName("audit.capture"))
	assert.Equal(t, "snaptrail-audit_capture", tr.durableName("audit.capture"))

	sc := tr.streamConfig()
	assert.Equal(t, "SNAPTRAIL", sc.Name)
	assert.Equal(t, []string{"snaptrail.>"}, sc.Subjects)
	assert.Equal(t, nats.LimitsPolicy, sc.Retention)
	assert.Equal(t, 3, sc.Replicas)
}

func TestPublishRequiresStart(t *testing.T) {
	tr := NewTransport(Config{})
	err := tr.Publish(context.Background(), messaging.NewMessage("x", nil))
	assert.Error(t, err)
	assert.False(t, tr.Stats().Running)
	assert.NoError(t, tr.Close())
}
