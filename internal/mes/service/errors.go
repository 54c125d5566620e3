package service

import (
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/tabular"
)

// 面向用户的错误，消息原样返回给调用方
var (
	ErrUnsupportedFormat = tabular.ErrUnsupportedFormat
	ErrUnreadableFile    = tabular.ErrUnreadableFile
	ErrHeaderNotFound    = tabular.ErrHeaderNotFound
	ErrNoDefaultRoute    = errors.New("default route is not configured")

	ErrPartNotFound     = errors.New("part not found")
	ErrPartExists       = errors.New("part with this id already exists")
	ErrParentNotFound   = errors.New("parent part not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRouteNotFound    = errors.New("route template not found")
	ErrRouteExists      = errors.New("route template with this name already exists")
	ErrRouteInUse       = errors.New("route template is used by parts")
	ErrStageNotInRoute  = errors.New("stage is not part of the part's route")
	ErrQuantityExceeded = errors.New("quantity exceeds the remaining amount")
	ErrHistoryNotFound  = errors.New("stage record not found")
	ErrUserNotFound     = errors.New("user not found")
)

// IsUserError 是否为可直接展示给用户的业务错误
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrUnsupportedFormat, ErrUnreadableFile, ErrHeaderNotFound, ErrNoDefaultRoute,
		ErrPartExists, ErrParentNotFound, ErrInvalidInput, ErrRouteExists, ErrRouteInUse,
		ErrStageNotInRoute, ErrQuantityExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Actor 操作人
type Actor struct {
	ID   string
	Name string
}
