package acquire

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/looptune/internal/dynamo"
)

func TestDecodeRFC3339(t *testing.T) {
	r, err := Decode([]byte(`{"tag":"TIC101.PV","ts":"2024-05-01T10:00:00Z","value":42.5,"quality":64}`), "")
	require.NoError(t, err)
	require.Equal(t, "TIC101.PV", r.Tag)
	require.Equal(t, 42.5, r.Sample.Value)
	require.Equal(t, 64, r.Sample.Quality)
	require.False(t, r.Sample.Good())
	require.True(t, r.Sample.Time.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}

func TestDecodeEpochMillis(t *testing.T) {
	want := time.UnixMilli(1714557600123).UTC()
	for _, raw := range []string{
		`{"tag":"FIC1.OP","ts":1714557600123,"value":10}`,
		`{"tag":"FIC1.OP","ts":"1714557600123","value":"10"}`,
	} {
		r, err := Decode([]byte(raw), "")
		require.NoError(t, err, raw)
		require.True(t, r.Sample.Time.Equal(want), raw)
		require.Equal(t, 10.0, r.Sample.Value)
		require.Equal(t, dynamo.QualityGood, r.Sample.Quality)
	}
}

func TestDecodeFallbacks(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := Decoder{Now: func() time.Time { return now }}
	r, err := d.Decode([]byte(`{"value":3}`), "LIC7.PV")
	require.NoError(t, err)
	require.Equal(t, "LIC7.PV", r.Tag)
	require.True(t, r.Sample.Time.Equal(now))
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"not json":  `nope`,
		"no tag":    `{"value":1}`,
		"no value":  `{"tag":"a"}`,
		"bad value": `{"tag":"a","value":"x"}`,
		"bad ts":    `{"tag":"a","value":1,"ts":"yesterday"}`,
		"empty ts":  `{"tag":"a","value":1,"ts":""}`,
	}
	for name, raw := range cases {
		_, err := Decode([]byte(raw), "")
		require.Error(t, err, name)
	}
}

func TestTagFromTopic(t *testing.T) {
	require.Equal(t, "TIC101.PV", TagFromTopic("plant/area1/TIC101.PV"))
	require.Equal(t, "TIC101.PV", TagFromTopic("plant/TIC101.PV/"))
	require.Equal(t, "flat", TagFromTopic("flat"))
}

func TestNewSourcesValidate(t *testing.T) {
	_, err := NewMQTTSource(MQTTConfig{Topics: []string{"a"}}, nil)
	require.Error(t, err)
	_, err = NewMQTTSource(MQTTConfig{Broker: "tcp://localhost:1883"}, nil)
	require.Error(t, err)
	_, err = NewMQTTSource(MQTTConfig{Broker: "tcp://localhost:1883", Topics: []string{"a"}, QoS: 3}, nil)
	require.Error(t, err)
	_, err = NewKafkaSource(KafkaConfig{Topic: "t"}, nil)
	require.Error(t, err)
	_, err = NewKafkaSource(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.Error(t, err)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTHandler(t *testing.T) {
	src, err := NewMQTTSource(MQTTConfig{Broker: "tcp://localhost:1883", Topics: []string{"plant/#"}}, nil)
	require.NoError(t, err)

	out := make(chan Reading, 2)
	h := src.handler(context.Background(), out)
	h(nil, fakeMessage{topic: "plant/TIC101.PV", payload: []byte(`{"value":7,"ts":1000}`)})
	h(nil, fakeMessage{topic: "plant/TIC101.PV", payload: []byte(`garbage`)})

	require.Len(t, out, 1)
	r := <-out
	require.Equal(t, "TIC101.PV", r.Tag)
	require.Equal(t, 7.0, r.Sample.Value)
}

func TestMQTTHandlerStopsOnCancel(t *testing.T) {
	src, err := NewMQTTSource(MQTTConfig{Broker: "tcp://localhost:1883", Topics: []string{"x"}}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Reading)
	done := make(chan struct{})
	go func() {
		src.handler(ctx, out)(nil, fakeMessage{topic: "x", payload: []byte(`{"value":1}`)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked after cancel")
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return kafka.Message{}, io.EOF
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaRun(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Key: []byte("PIC3.PV"), Value: []byte(`{"value":1.5,"ts":1000}`)},
		{Offset: 2, Value: []byte(`{"value":2}`)},
		{Offset: 3, Value: []byte(`{"tag":"PIC3.OP","value":40,"ts":2000}`)},
	}}
	src := newKafkaSource(KafkaConfig{Brokers: []string{"b"}, Topic: "t"}, fr, nil)
	src.poll = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Reading, 8)
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, out) }()

	first := <-out
	second := <-out
	require.Equal(t, "PIC3.PV", first.Tag)
	require.Equal(t, 1.5, first.Sample.Value)
	require.Equal(t, "PIC3.OP", second.Tag)

	require.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return len(fr.committed) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestKafkaRunEndsOnClose(t *testing.T) {
	fr := &fakeReader{}
	require.NoError(t, fr.Close())
	src := newKafkaSource(KafkaConfig{Brokers: []string{"b"}, Topic: "t"}, fr, nil)
	require.NoError(t, src.Run(context.Background(), make(chan Reading)))
}
