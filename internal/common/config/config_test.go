package config

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type colour string

func parseColour(s string) (colour, error) {
	switch strings.ToLower(s) {
	case "red", "blue":
		return colour(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown colour %q", s)
	}
}

type testConfig struct {
	Name    string        `validate:"required"`
	Count   int           `validate:"gte=1"`
	Timeout time.Duration `validate:"gte=0"`
	Colour  colour
}

func TestCustomHooks_Decode(t *testing.T) {
	v := viper.New()
	v.Set("name", "x")
	v.Set("count", 3)
	v.Set("timeout", "90s")
	v.Set("colour", "RED")

	var c testConfig
	require.NoError(t, v.Unmarshal(&c, CustomHooks(StringParserHook(parseColour))))
	assert.Equal(t, testConfig{Name: "x", Count: 3, Timeout: 90 * time.Second, Colour: "red"}, c)
}

func TestCustomHooks_ParseError(t *testing.T) {
	v := viper.New()
	v.Set("colour", "green")

	var c testConfig
	assert.Error(t, v.Unmarshal(&c, CustomHooks(StringParserHook(parseColour))))
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		config     testConfig
		wantErr    bool
		wantLogged []string
	}{
		"valid": {
			config: testConfig{Name: "x", Count: 1},
		},
		"missing name": {
			config:     testConfig{Count: 1},
			wantErr:    true,
			wantLogged: []string{"ConfigError: Field Name is required but was not found"},
		},
		"bad count and timeout": {
			config:  testConfig{Name: "x", Count: 0, Timeout: -time.Second},
			wantErr: true,
			wantLogged: []string{
				"ConfigError: Field Count has invalid value 0: gte 1",
				"ConfigError: Field Timeout has invalid value -1s: gte 0",
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			hook := test.NewGlobal()
			defer hook.Reset()

			err := Validate(tc.config)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			var logged []string
			for _, entry := range hook.AllEntries() {
				assert.Equal(t, logrus.ErrorLevel, entry.Level)
				logged = append(logged, entry.Message)
			}
			assert.Equal(t, tc.wantLogged, logged)
		})
	}
}
