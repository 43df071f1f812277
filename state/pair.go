package state

type Pair[Ty1, Ty2 any] struct {
	V1 Ty1
	V2 Ty2
}

// Optional holds either a value or nothing. The zero value is empty.
type Optional[Ty any] struct {
	v  Ty
	ok bool
}

func Some[Ty any](v Ty) Optional[Ty] {
	return Optional[Ty]{v: v, ok: true}
}

func None[Ty any]() Optional[Ty] {
	return Optional[Ty]{}
}

func (o Optional[Ty]) Get() (Ty, bool) {
	return o.v, o.ok
}

func (o Optional[Ty]) IsSome() bool {
	return o.ok
}
