package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"gorm.io/gorm"
)

// UserStore reads the users directory. Writes exist only for local setup.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return upstream("create user", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, upstream("get user", err)
	}
	return &u, nil
}

// GetMany resolves ids in a single query. Unknown ids are absent from the result.
func (s *UserStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error) {
	out := make(map[uuid.UUID]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, upstream("get users", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}
