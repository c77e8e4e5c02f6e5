package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitchlink/hitchlink-go/pkg/pairing"
)

func TestFramerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := &Framer{r: &buf, w: &buf}

	payloads := [][]byte{
		[]byte("hello"),
		nil,
		bytes.Repeat([]byte{0xAB}, 300),
	}
	ops := []Opcode{OpNotify, OpPing, OpCommand}

	for i := range payloads {
		require.NoError(t, f.Write(ops[i], payloads[i]))
	}
	for i := range payloads {
		op, payload, err := f.Read()
		require.NoError(t, err)
		assert.Equal(t, ops[i], op)
		assert.Equal(t, len(payloads[i]), len(payload))
	}
}

func TestFramerRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	f := &Framer{r: &buf, w: &buf}

	err := f.Write(OpNotify, make([]byte, MaxMessageSize))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := pairing.DeriveSessionKey("12345678", "test-device")
	require.NoError(t, err)
	return key
}

func startServer(t *testing.T, key []byte, setup func(*Server)) *Server {
	t.Helper()
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", SessionKey: key})
	if setup != nil {
		setup(srv)
	}
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv
}

func TestHelloExchange(t *testing.T) {
	key := testKey(t)
	connected := make(chan string, 1)
	srv := startServer(t, key, func(s *Server) {
		s.OnConnect(func(id string) { connected <- id })
	})

	client, err := Dial(srv.Addr().String(), key)
	require.NoError(t, err)
	defer client.Close()
	client.Start()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never reported the session")
	}
	assert.Equal(t, 1, srv.SessionCount())
}

func TestHelloRejectedOnWrongKey(t *testing.T) {
	srv := startServer(t, testKey(t), nil)

	wrong, err := pairing.DeriveSessionKey("00000000", "test-device")
	require.NoError(t, err)

	_, err = Dial(srv.Addr().String(), wrong)
	assert.ErrorIs(t, err, ErrHelloRejected)
	assert.Equal(t, 0, srv.SessionCount())
}

func TestPublishReachesClient(t *testing.T) {
	key := testKey(t)
	connected := make(chan struct{}, 1)
	srv := startServer(t, key, func(s *Server) {
		s.OnConnect(func(string) { connected <- struct{}{} })
	})

	client, err := Dial(srv.Addr().String(), key)
	require.NoError(t, err)
	defer client.Close()

	got := make(chan []byte, 1)
	client.OnNotify(func(p []byte) { got <- append([]byte(nil), p...) })
	client.Start()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("session never established")
	}

	srv.Publish([]byte("frame-payload"))

	select {
	case p := <-got:
		assert.Equal(t, "frame-payload", string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("notify never arrived")
	}
}

func TestCommandReachesServer(t *testing.T) {
	key := testKey(t)
	got := make(chan []byte, 1)
	srv := startServer(t, key, func(s *Server) {
		s.OnCommand(func(_ string, p []byte) { got <- append([]byte(nil), p...) })
	})

	client, err := Dial(srv.Addr().String(), key)
	require.NoError(t, err)
	defer client.Close()
	client.Start()

	require.NoError(t, client.WriteCommand([]byte("cmd-payload")))

	select {
	case p := <-got:
		assert.Equal(t, "cmd-payload", string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
}

func TestClientOnClosedFiresOnServerDrop(t *testing.T) {
	key := testKey(t)
	srv := startServer(t, key, nil)

	client, err := Dial(srv.Addr().String(), key)
	require.NoError(t, err)
	defer client.Close()

	closed := make(chan struct{}, 1)
	client.OnClosed(func(error) { closed <- struct{}{} })
	client.Start()

	srv.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed never fired")
	}
}
