package core

import (
	"reflect"

	"github.com/encodeous/dvnode/state"
)

func Get[T state.NyModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
