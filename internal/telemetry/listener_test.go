package telemetry

import (
	"context"
	"net"
	"testing"
	"time"
)

type channelHandler chan Message

func (ch channelHandler) Handle(message Message) {
	ch <- message
}

func TestListener(t *testing.T) {
	handler := make(channelHandler, 10)
	listener := NewListener("127.0.0.1:0", F1Decoder{}, handler, testLogger())

	addr, err := listener.Bind()

	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- listener.Listen(ctx)
	}()

	conn, err := net.Dial("udp", addr.String())

	if err != nil {
		t.Fatal(err)
	}

	defer conn.Close()

	// garbage and unhandled packets are dropped, the listener carries on.
	for _, b := range [][]byte{{1, 2, 3}, lapDataPacket(t, 1, nil)[:headerSize+10], participantsPacket(t, 7, map[int]string{0: "ALONSO"}, 4)} {
		if _, err := conn.Write(b); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case message := <-handler:
		participants, ok := message.(Participants)

		if !ok {
			t.Fatalf("expected Participants, got %T", message)
		}

		if participants.Cars[0].Name != "ALONSO" {
			t.Errorf("expected ALONSO, got %q", participants.Cars[0].Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for packet")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * readTimeout):
		t.Error("listener did not stop after cancel")
	}
}
