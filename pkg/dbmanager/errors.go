package dbmanager

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"mongoscan/pkg/apperr"
)

const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeNamespaceNotFound    = 26
)

// ClassifyError maps a driver error onto an apperr kind. Errors that are
// already classified pass through unchanged.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(codeAuthenticationFailed), serverErr.HasErrorCode(codeUnauthorized):
			return apperr.Wrap(apperr.KindAuthenticationFailed, op, err)
		case serverErr.HasErrorCode(codeNamespaceNotFound):
			return apperr.Wrap(apperr.KindCollectionNotFound, op, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "auth error"),
		strings.Contains(msg, "unable to authenticate"):
		return apperr.Wrap(apperr.KindAuthenticationFailed, op, err)
	case strings.Contains(msg, "ns not found"), strings.Contains(msg, "namespacenotfound"):
		return apperr.Wrap(apperr.KindCollectionNotFound, op, err)
	}
	return apperr.Wrap(apperr.KindConnectionFailed, op, err)
}
