//go:build integration

// Package containers starts throwaway backing services for integration
// tests.  Docker is required.
package containers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/geo-regions/internal/database"
)

// MongoContainer wraps a single-node replica set, which transactions need.
type MongoContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
	Client    *mongo.Client
}

var dbSeq atomic.Int64

// NewMongoContainer starts mongo:7 as replica set rs0.  The container is
// terminated when the test finishes.
func NewMongoContainer(t *testing.T) *MongoContainer {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start mongo container: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get mongo connection string: %v", err)
	}
	// the replica set advertises the container hostname
	if !strings.Contains(uri, "directConnection") {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		uri += sep + "directConnection=true"
	}

	client, err := database.Open(ctx, uri)
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return &MongoContainer{Container: container, URI: uri, Client: client}
}

// FreshDatabase returns a new, empty database with all indexes in place.
func (m *MongoContainer) FreshDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	db := m.Client.Database(fmt.Sprintf("georegions_test_%d", dbSeq.Add(1)))
	if err := database.EnsureIndexes(context.Background(), db); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}
	return db
}
