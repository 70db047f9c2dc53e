package session

import (
	"context"

	"github.com/turtacn/ContactScope/pkg/types/common"
)

// Repository is the persistence contract for sessions. FindByID and Delete
// return an error satisfying IsNotFound when the id is unknown.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id common.ID) (*Session, error)
	List(ctx context.Context, page common.Pagination) ([]Header, int64, error)
	Delete(ctx context.Context, id common.ID) error
}
