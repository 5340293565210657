package main

import (
	"context"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/outbox"
)

func newServiceForTest(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()

	cfg := &config.Config{}
	cfg.PubSub.OrdersTopic = "orders-topic"
	cfg.PubSub.NotificationTopic = "notification-topic"
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test"}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: repo,
		PublisherFactory: func(string) publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{ID: 1, EventType: outbox.EventOrderCreated, AggregateType: outbox.AggregateOrder, AggregateID: "EM100", Payload: []byte(`{}`)},
			{ID: 2, EventType: outbox.EventOrderCreated, AggregateType: outbox.AggregateOrder, AggregateID: "EM101", Payload: []byte(`{}`)},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newServiceForTest(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != 1 {
		t.Fatalf("failed = %v, want [1]", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != 2 {
		t.Fatalf("published = %v, want [2]", repo.published)
	}
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	repo := &fakeRepo{}
	service := newServiceForTest(t, repo, &fakePublisher{})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed {
		t.Fatal("empty queue must not report processed")
	}
}

func TestTopicRouting(t *testing.T) {
	service := newServiceForTest(t, &fakeRepo{}, &fakePublisher{})

	cases := []struct {
		eventType string
		want      string
	}{
		{outbox.EventOrderCreated, "orders-topic"},
		{outbox.EventOrderCancelled, "orders-topic"},
		{outbox.EventPaymentCompleted, "orders-topic"},
		{outbox.EventPaymentRejected, "orders-topic"},
		{outbox.EventInventoryAlert, "notification-topic"},
	}
	for _, tc := range cases {
		if got := service.topicFor(tc.eventType); got != tc.want {
			t.Fatalf("topicFor(%s) = %s, want %s", tc.eventType, got, tc.want)
		}
	}
}

func TestPublishEventRoutesToFactoryTopic(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{ID: 5, EventType: outbox.EventInventoryAlert, AggregateType: outbox.AggregateInventory, AggregateID: "42", Payload: []byte(`{}`)},
		},
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newServiceForTest(t, repo, pub)

	var requested []string
	service.publisherFactory = func(topic string) publisher {
		requested = append(requested, topic)
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(requested) != 1 || requested[0] != "notification-topic" {
		t.Fatalf("requested topics = %v, want [notification-topic]", requested)
	}
}

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	base := time.Duration(defaultPollMs) * time.Millisecond
	backoff := nextBackoff(base, base, maxBackoff)
	if backoff != 2*base {
		t.Fatalf("backoff = %v, want %v", backoff, 2*base)
	}
	for i := 0; i < 20; i++ {
		backoff = nextBackoff(backoff, base, maxBackoff)
	}
	if backoff != maxBackoff {
		t.Fatalf("backoff = %v, want capped at %v", backoff, maxBackoff)
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uint
	failed    []uint
}

func (f *fakeRepo) FetchUnpublished(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uint) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uint, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results []publishResult
}

func (f *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}
