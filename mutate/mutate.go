package mutate

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sugawani/tellname/models"
	"github.com/sugawani/tellname/store"
)

type Mutate struct {
	db *gorm.DB
}

func NewMutate(db *gorm.DB) *Mutate {
	return &Mutate{db: db}
}

// Execute stores a new user under a generated id.
func (m *Mutate) Execute(ctx context.Context, name string) (*models.User, error) {
	row := store.UserRow{Name: name}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errors.Wrapf(err, "create user %q", name)
	}
	return row.User(), nil
}
