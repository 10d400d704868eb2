package config

import (
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookTarget struct {
	Type     StoreTypeName
	Interval time.Duration
	Name     string
}

func TestLowerCaseNameHookFunc(t *testing.T) {
	var out hookTarget
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			LowerCaseNameHookFunc(),
		),
		Result: &out,
	})
	require.NoError(t, err)

	err = decoder.Decode(map[string]interface{}{
		"type":     " Postgres ",
		"interval": "5s",
		"name":     "KeepCase",
	})
	require.NoError(t, err)
	assert.Equal(t, hookTarget{Type: "postgres", Interval: 5 * time.Second, Name: "KeepCase"}, out)
}
