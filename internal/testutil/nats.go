package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// EmbeddedNATS is an in-process NATS server with JetStream enabled
type EmbeddedNATS struct {
	Server *server.Server
	Conn   *nats.Conn
	JS     nats.JetStreamContext
}

// StartJetStream starts an embedded server on a free port and connects to
// it. Everything is torn down when the test finishes.
func StartJetStream(t *testing.T) *EmbeddedNATS {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		s.Shutdown()
	})

	return &EmbeddedNATS{Server: s, Conn: nc, JS: js}
}

// ConsumeMessages collects messages on subject until n have arrived or the
// timeout expires
func ConsumeMessages(t *testing.T, js nats.JetStreamContext, subject string, n int, timeout time.Duration) []*nats.Msg {
	t.Helper()

	msgCh := make(chan *nats.Msg, 100)
	sub, err := js.Subscribe(subject, func(msg *nats.Msg) {
		msgCh <- msg
	}, nats.DeliverAll())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var messages []*nats.Msg
	for len(messages) < n {
		select {
		case msg := <-msgCh:
			messages = append(messages, msg)
		case <-timer.C:
			return messages
		}
	}
	return messages
}
