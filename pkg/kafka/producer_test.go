package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []skafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewProducerWithWriter(fw)

	err := p.Publish(context.Background(), "payment-1", map[string]string{"state": "SUCCESS"})
	require.NoError(t, err)
	require.Len(t, fw.msgs, 1)

	assert.Equal(t, "payment-1", string(fw.msgs[0].Key))
	var body map[string]string
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &body))
	assert.Equal(t, "SUCCESS", body["state"])
}

func TestPublishWriteError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(fw)

	err := p.Publish(context.Background(), "payment-1", struct{}{})
	assert.ErrorContains(t, err, "broker down")
}

func TestPublishMarshalError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{})

	err := p.Publish(context.Background(), "k", make(chan int))
	assert.Error(t, err)
}
