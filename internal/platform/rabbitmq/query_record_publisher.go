package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/model"
)

const ContentTypeJSON = "application/json"

type QueryRecordPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewQueryRecordPublisher(conn *amqp.Connection, queueName string) *QueryRecordPublisher {
	return &QueryRecordPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// EncodeQueryRecord builds the persistent delivery for record.
func EncodeQueryRecord(record model.QueryRecord) (amqp.Publishing, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal query record failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  ContentTypeJSON,
		MessageId:    record.RunID,
		Timestamp:    time.Now(),
		Type:         "query_record",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}, nil
}

func (p *QueryRecordPublisher) Publish(ctx context.Context, record model.QueryRecord) error {
	msg, err := EncodeQueryRecord(record)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish query record failed: %w", err)
	}
	return nil
}
