package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBaseEntity_Touch(t *testing.T) {
	entity := domain.NewBaseEntity(uuid.New(), testNow)
	later := testNow.Add(time.Hour)

	entity.Touch(later)

	assert.Equal(t, later, entity.UpdatedAt())
	assert.Equal(t, testNow, entity.CreatedAt())
}

func TestBaseEntity_Equals(t *testing.T) {
	id := uuid.New()
	entity1 := domain.NewBaseEntity(id, testNow)
	entity2 := domain.RehydrateBaseEntity(id, testNow, testNow)
	entity3 := domain.NewBaseEntity(uuid.New(), testNow)

	assert.True(t, entity1.Equals(&entity2))
	assert.False(t, entity1.Equals(&entity3))
	assert.False(t, entity1.Equals(nil))
}
