package config

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// CustomHooks returns the decode options passed to viper.Unmarshal: viper's default string to duration and
// string to slice hooks, followed by any additional hooks.
func CustomHooks(hooks ...mapstructure.DecodeHookFunc) viper.DecoderConfigOption {
	all := append([]mapstructure.DecodeHookFunc{
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	}, hooks...)
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(all...))
}

// StringParserHook decodes strings into T using parse. Values of any other source kind, or destined for any
// other type, pass through untouched.
func StringParserHook[T any](parse func(string) (T, error)) mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf((*T)(nil)).Elem()
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// check that src and target types are valid
		if f.Kind() != reflect.String || t != target {
			return data, nil
		}
		return parse(reflect.ValueOf(data).String())
	}
}
