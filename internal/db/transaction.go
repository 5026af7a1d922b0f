package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// TransactionManager defines the interface for running operations in a transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(sessCtx context.Context) (interface{}, error)) (interface{}, error)
}

// IsRetryable reports whether an error is classified as transient by the
// underlying transaction mechanism. Only these errors may be retried; all
// others must surface to the caller unchanged.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsTimeout(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") ||
			se.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}
