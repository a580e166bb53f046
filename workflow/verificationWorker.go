package workflow

import (
	"context"
	"encoding/json"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// SlipWorker consumes the verification subscription. Pub/Sub delivery is
// at-least-once: Ack only after the verifier persisted a slip state, Nack on
// persistence errors so the message is redelivered.
type SlipWorker struct {
	Logger   *logrus.Logger
	Verifier *SlipVerifier
}

func NewSlipWorker(db *gorm.DB, logger *logrus.Logger) *SlipWorker {
	return &SlipWorker{
		Logger:   logger,
		Verifier: NewSlipVerifier(db, logger),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *SlipWorker) Run(ctx context.Context) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic, err := config.CreateTopicIfNotExists(client, config.SlipTopicName())
	if err != nil {
		return err
	}
	subName := os.Getenv("SLIP_SUBSCRIPTION")
	if subName == "" {
		subName = config.SlipTopicName() + "-worker"
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var m config.SlipVerificationMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			config.LogError(w.Logger, "verificationWorker.go", "Run", "unmarshal message", string(msg.Data), err)
			// Malformed payload: ack/drop to avoid infinite retries.
			msg.Ack()
			return
		}

		handlerCtx := msgCtx
		if m.BusinessId != "" {
			handlerCtx = utils.SetBusinessIdInContext(handlerCtx, m.BusinessId)
		}
		if m.CorrelationId != "" {
			handlerCtx = utils.SetCorrelationIdInContext(handlerCtx, m.CorrelationId)
		}

		if err := w.Verifier.Verify(handlerCtx, m.OrderId); err != nil {
			config.LogError(w.Logger, "verificationWorker.go", "Run", "verify slip", m.OrderId, err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
