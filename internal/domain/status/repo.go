package status

import "context"

type Repository interface {
	List(ctx context.Context) ([]*Status, error)
}
