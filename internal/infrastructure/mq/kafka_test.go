package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "wallet-1" || msg.Topic != "wallet-events" {
			return errors.New("unexpected routing")
		}
		return nil
	})

	p := NewKafkaPublisher(producer)
	require.NoError(t, p.Publish("wallet-events", "wallet-1", `{"event":"balance.updated"}`))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherReturnsBrokerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := NewKafkaPublisher(producer)
	err := p.Publish("wallet-events", "wallet-1", "{}")
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, p.Close())
}
