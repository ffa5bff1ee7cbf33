package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"fuzzexp/config"
	"fuzzexp/internal/types"
	"fuzzexp/pkg/mq"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const ResultQueueName = "experiment_results"

// Publisher announces every finished job on the results queue.
type Publisher struct {
	rabbitMQ      mq.RabbitMQ
	runID         types.RunID
	resultsFolder string
	logger        *zap.Logger
}

type PublisherParams struct {
	fx.In

	Lc         fx.Lifecycle
	RabbitMQ   mq.RabbitMQ `optional:"true"`
	RunID      types.RunID
	Experiment *config.ExperimentConfig
	Logger     *zap.Logger
}

// NewPublisher returns nil when RabbitMQ is not configured.
func NewPublisher(p PublisherParams) *Publisher {
	if p.RabbitMQ == nil {
		return nil
	}
	pub := &Publisher{
		rabbitMQ:      p.RabbitMQ,
		runID:         p.RunID,
		resultsFolder: p.Experiment.ResultsFolder,
		logger:        p.Logger.Named("notify"),
	}
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return pub.declareQueue()
		},
	})
	return pub
}

func (p *Publisher) declareQueue() error {
	channel, err := p.rabbitMQ.GetChannel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	defer channel.Close()

	_, err = channel.QueueDeclare(
		ResultQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

func (p *Publisher) Name() string {
	return "rabbitmq"
}

func (p *Publisher) Record(ctx context.Context, result types.Result) error {
	body, err := json.Marshal(types.NewResultMessage(p.runID, p.resultsFolder, result))
	if err != nil {
		return fmt.Errorf("failed to marshal result message: %w", err)
	}

	channel, err := p.rabbitMQ.GetChannel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	defer channel.Close()

	err = channel.PublishWithContext(ctx,
		"",              // exchange
		ResultQueueName, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	p.logger.Debug("result published", zap.String("job", result.Job.Name()), zap.String("queue", ResultQueueName))
	return nil
}
