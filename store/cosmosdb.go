package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// PartitionKeyPath is the partition key the threads container must be created with.
const PartitionKeyPath = "/threadId"

// threadDocument is one Cosmos DB item per thread. Messages are appended and runs are set with
// patch operations so concurrent writers never overwrite each other.
type threadDocument struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"threadId"`
	Messages []Message      `json:"messages"`
	Runs     map[string]Run `json:"runs"`
	TTL      int            `json:"ttl,omitempty"`
}

// CosmosStore keeps threads in an Azure Cosmos DB container. Expiry uses per-item TTL, so the
// container needs a default TTL set (-1 is enough).
type CosmosStore struct {
	container *azcosmos.ContainerClient
	ttl       time.Duration
}

func NewCosmosStore(client *azcosmos.Client, databaseName, containerName string, ttl time.Duration) (*CosmosStore, error) {
	database, err := client.NewDatabase(databaseName)
	if err != nil {
		return nil, err
	}

	container, err := database.NewContainer(containerName)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CosmosStore{container: container, ttl: ttl}, nil
}

func (s *CosmosStore) CreateThread(ctx context.Context, threadID string) error {
	doc := threadDocument{
		ID:       threadID,
		ThreadID: threadID,
		Messages: []Message{},
		Runs:     map[string]Run{},
		TTL:      int(s.ttl.Seconds()),
	}

	item, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	_, err = s.container.CreateItem(ctx, azcosmos.NewPartitionKeyString(threadID), item, nil)
	if err != nil {
		return fmt.Errorf("create thread %s: %w", threadID, err)
	}
	return nil
}

func (s *CosmosStore) AppendMessage(ctx context.Context, threadID string, msg Message) error {
	ops := azcosmos.PatchOperations{}
	ops.AppendAdd("/messages/-", msg)
	return s.patch(ctx, threadID, ops)
}

func (s *CosmosStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	doc, err := s.read(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

func (s *CosmosStore) SaveRun(ctx context.Context, run Run) error {
	ops := azcosmos.PatchOperations{}
	ops.AppendSet("/runs/"+run.ID, run)
	return s.patch(ctx, run.ThreadID, ops)
}

func (s *CosmosStore) Run(ctx context.Context, threadID, runID string) (Run, error) {
	doc, err := s.read(ctx, threadID)
	if err != nil {
		return Run{}, err
	}
	run, ok := doc.Runs[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (s *CosmosStore) patch(ctx context.Context, threadID string, ops azcosmos.PatchOperations) error {
	_, err := s.container.PatchItem(ctx, azcosmos.NewPartitionKeyString(threadID), threadID, ops, nil)
	if isNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update thread %s: %w", threadID, err)
	}
	return nil
}

func (s *CosmosStore) read(ctx context.Context, threadID string) (threadDocument, error) {
	resp, err := s.container.ReadItem(ctx, azcosmos.NewPartitionKeyString(threadID), threadID, nil)
	if isNotFound(err) {
		return threadDocument{}, ErrNotFound
	}
	if err != nil {
		return threadDocument{}, fmt.Errorf("read thread %s: %w", threadID, err)
	}

	var doc threadDocument
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return threadDocument{}, fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	return doc, nil
}

func isNotFound(err error) bool {
	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.StatusCode == http.StatusNotFound
	}
	return false
}
