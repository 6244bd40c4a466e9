package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Content tree errors. Uniqueness violations are recoverable: the caller can
// retry with another slug/name or ask for auto-resolution.
var (
	ErrInvalidParent  = errors.New("invalid parent")
	ErrInvalidNode    = errors.New("invalid node")
	ErrInvalidSlug    = errors.New("invalid slug")
	ErrDuplicatePath  = errors.New("duplicate path")
	ErrDuplicateSlug  = fmt.Errorf("duplicate slug: %w", ErrDuplicatePath)
	ErrDuplicateName  = errors.New("duplicate name")
	ErrInvalidPost    = errors.New("invalid post")
	ErrInvalidVersion = errors.New("invalid post version")
	ErrInvalidIDs     = errors.New("invalid ids")
	ErrInvalidSource  = errors.New("invalid source")
)

func NewInvalidParentError(parentID string, reason string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrInvalidParent,
		Code:       "invalid_parent",
		Details:    fmt.Sprintf("parent %s %s", parentID, reason),
		Field:      "parentId",
	}
}

func NewInvalidNodeError(id string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        ErrInvalidNode,
		Code:       "invalid_node",
		Details:    fmt.Sprintf("node %s does not exist", id),
		Field:      "id",
	}
}

func NewInvalidSlugError(slug string, reason string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrInvalidSlug,
		Code:       "invalid_slug",
		Details:    fmt.Sprintf("slug %q %s", slug, reason),
		Field:      "slug",
	}
}

func NewDuplicatePathError(path string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusConflict,
		err:        ErrDuplicatePath,
		Code:       "duplicate_path",
		Details:    fmt.Sprintf("a node already exists at %q", path),
		Field:      "slug",
	}
}

func NewDuplicateSlugError(path string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusConflict,
		err:        ErrDuplicateSlug,
		Code:       "duplicate_slug",
		Details:    fmt.Sprintf("a node already exists at %q", path),
		Field:      "slug",
	}
}

func NewDuplicateNameError(name string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusConflict,
		err:        ErrDuplicateName,
		Code:       "duplicate_name",
		Details:    fmt.Sprintf("a sibling named %q already exists", name),
		Field:      "name",
	}
}

func NewInvalidPostError(id string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        ErrInvalidPost,
		Code:       "invalid_post",
		Details:    fmt.Sprintf("post %s does not exist", id),
		Field:      "id",
	}
}

func NewInvalidVersionError(postID, versionID string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrInvalidVersion,
		Code:       "invalid_post_version",
		Details:    fmt.Sprintf("version %s does not belong to post %s", versionID, postID),
		Field:      "versionId",
	}
}

func NewInvalidIDsError(ids []string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrInvalidIDs,
		Code:       "invalid_ids",
		Details:    fmt.Sprintf("unknown or ineligible ids: %s", strings.Join(ids, ", ")),
		Field:      "ids",
	}
}

func NewInvalidSourceError(id string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        ErrInvalidSource,
		Code:       "invalid_source",
		Details:    fmt.Sprintf("source %s does not exist", id),
		Field:      "sourceId",
	}
}

func IsDuplicatePath(err error) bool {
	return errors.Is(err, ErrDuplicatePath)
}

func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

func IsInvalidParent(err error) bool {
	return errors.Is(err, ErrInvalidParent)
}

func IsInvalidNode(err error) bool {
	return errors.Is(err, ErrInvalidNode)
}

func IsInvalidVersion(err error) bool {
	return errors.Is(err, ErrInvalidVersion)
}
