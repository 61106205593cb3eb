package cache

import (
	"time"

	gcache "github.com/Code-Hex/go-generics-cache"
)

const defaultExpiration = time.Minute * 5

var store = gcache.New[string, any]()

func Get[T any](key string) *T {
	v, ok := store.Get(key)
	if !ok {
		return nil
	}
	t, ok := v.(*T)
	if !ok {
		return nil
	}
	return t
}

func Set[T any](key string, value *T) {
	store.Set(key, value, gcache.WithExpiration(defaultExpiration))
}

func Delete(key string) {
	store.Delete(key)
}

func GetOrSet[T any](key string, factory func() (*T, error)) (*T, error) {
	v := Get[T](key)
	if v != nil {
		return v, nil
	}
	v, err := factory()
	if err != nil {
		return nil, err
	}
	Set(key, v)
	return v, nil
}
