package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/logger"
)

func TestKafkaPublisherSendsJSON(t *testing.T) {
	t.Parallel()
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.Type != "customer_info_update" || env.ID == "" {
			return assert.AnError
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(logger.Discard(), producer)
	err := pub.Publish(context.Background(), "customer-profile-updated", "42", NewEnvelope("customer_info_update", map[string]string{"name": "A"}))
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherPropagatesFailure(t *testing.T) {
	t.Parallel()
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(logger.Discard(), producer)
	err := pub.Publish(context.Background(), "t", "k", map[string]int{"a": 1})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestNewSaramaConfigEnablesSASL(t *testing.T) {
	t.Parallel()
	sc := NewSaramaConfig(config.KafkaConfig{ClientID: "desk", Username: "u", Password: "p"})
	assert.True(t, sc.Net.SASL.Enable)
	assert.Equal(t, "desk", sc.ClientID)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)

	sc = NewSaramaConfig(config.KafkaConfig{})
	assert.False(t, sc.Net.SASL.Enable)
}
