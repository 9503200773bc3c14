package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/logger"
	"docqa/internal/model"
	"docqa/internal/platform/rabbitmq"
)

type QueryRecordStore interface {
	Create(record *model.QueryRecord) error
}

// QueryRecordWorker drains the query history queue into the database.
type QueryRecordWorker struct {
	conn      *amqp.Connection
	repo      QueryRecordStore
	queueName string
	log       logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueryRecordWorker(conn *amqp.Connection, repo QueryRecordStore, queueName string, log logger.Logger) *QueryRecordWorker {
	return &QueryRecordWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		log:       log.With("component", "query_record_worker", "queue", queueName),
	}
}

func (w *QueryRecordWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("delivery channel closed")
					return
				}
				if err := w.handle(d.Body); err != nil {
					w.log.Error("persist query record failed", "message_id", d.MessageId, "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("worker started")
	return nil
}

func (w *QueryRecordWorker) handle(body []byte) error {
	var record model.QueryRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return fmt.Errorf("decode query record failed: %w", err)
	}
	if record.RunID == "" {
		return errors.New("decode query record failed: missing run id")
	}
	record.ID = 0
	return w.repo.Create(&record)
}

func (w *QueryRecordWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
