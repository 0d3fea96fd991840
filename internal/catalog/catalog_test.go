package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func TestSnapshotSkipsDeletedProducts(t *testing.T) {
	live := models.Product{ID: primitive.NewObjectID(), Name: "Tee", Price: 20}
	gone := models.Product{ID: primitive.NewObjectID(), Name: "Old", Price: 5, IsDeleted: true}

	s := NewSnapshot([]models.Product{live, gone})

	got, ok := s.Product(live.ID.Hex())
	assert.True(t, ok)
	assert.Equal(t, "Tee", got.Name)

	_, ok = s.Product(gone.ID.Hex())
	assert.False(t, ok)
}
