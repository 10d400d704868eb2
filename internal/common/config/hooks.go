package config

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is implemented by every top-level configuration struct so that it can be validated after loading.
type Config interface {
	Validate() error
}

// StoreTypeName is the type configuration uses for naming a storage backend.
type StoreTypeName string

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		LowerCaseNameHookFunc(),
	)),
}

// LowerCaseNameHookFunc normalises store type names so that "Postgres" and "postgres" are equivalent in config files.
func LowerCaseNameHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// check that src and target types are valid
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t == reflect.TypeOf(StoreTypeName("")) {
			return StoreTypeName(strings.ToLower(strings.TrimSpace(reflect.ValueOf(data).String()))), nil
		}
		return data, nil
	}
}
