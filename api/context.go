package api

import (
	"context"
	"errors"

	"github.com/rpupo63/content-tree-backend/models"
)

type keyType string

const kindKey keyType = "kind"

// ctxWithKind records the node kind resolved from the {kind} path segment
func ctxWithKind(ctx context.Context, kind models.Kind) context.Context {
	return context.WithValue(ctx, kindKey, kind)
}

// ctxGetKind retrieves the node kind from the context
func ctxGetKind(ctx context.Context) (models.Kind, error) {
	if ctxValue := ctx.Value(kindKey); ctxValue == nil {
		return "", errors.New("kind not found in context")
	} else if kind, ok := ctxValue.(models.Kind); !ok {
		return "", errors.New("value is not of type `models.Kind`")
	} else {
		return kind, nil
	}
}
