package query

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sugawani/tellname/models"
	"github.com/sugawani/tellname/store"
)

var ErrUserNotFound = errors.New("user not found")

type Query struct {
	db *gorm.DB
}

func NewQuery(db *gorm.DB) *Query {
	return &Query{db: db}
}

func (q *Query) Execute(ctx context.Context, userID models.ID) (*models.User, error) {
	var row store.UserRow
	if err := q.db.WithContext(ctx).First(&row, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d: %w", ErrUserNotFound, userID, err)
		}
		return nil, fmt.Errorf("find user %d: %w", userID, err)
	}

	return row.User(), nil
}
