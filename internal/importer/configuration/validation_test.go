package configuration

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() ImporterConfiguration {
	return ImporterConfiguration{
		Engines: []EngineConfiguration{
			{Alias: "engine-1", Url: "http://localhost:8080/engine-rest", Enabled: true, PageSize: 100},
			{Alias: "engine-2", Url: "http://localhost:8081/engine-rest", Enabled: true, PageSize: 100},
		},
		Scheduler: SchedulerConfiguration{
			Interval:              time.Second,
			StoreProgressInterval: 10 * time.Second,
			MaxConcurrentImports:  4,
			FairnessCycles:        5,
		},
		Backoff:     BackoffConfiguration{Min: time.Second, Max: 30 * time.Second, Multiplier: 2},
		Checkpoint:  CheckpointConfiguration{Type: StoreMemory},
		Destination: DestinationConfiguration{Type: StoreMemory},
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(c *ImporterConfiguration)
		valid  bool
	}{
		"valid": {
			mutate: func(c *ImporterConfiguration) {},
			valid:  true,
		},
		"duplicate engine alias": {
			mutate: func(c *ImporterConfiguration) { c.Engines[1].Alias = "engine-1" },
		},
		"engine without url": {
			mutate: func(c *ImporterConfiguration) { c.Engines[0].Url = "" },
		},
		"zero page size": {
			mutate: func(c *ImporterConfiguration) { c.Engines[0].PageSize = 0 },
		},
		"backoff max below min": {
			mutate: func(c *ImporterConfiguration) { c.Backoff.Max = time.Millisecond },
		},
		"unknown checkpoint store": {
			mutate: func(c *ImporterConfiguration) { c.Checkpoint.Type = "cassandra" },
		},
		"pebble without path": {
			mutate: func(c *ImporterConfiguration) { c.Checkpoint.Type = StorePebble },
		},
		"pebble with path": {
			mutate: func(c *ImporterConfiguration) {
				c.Checkpoint.Type = StorePebble
				c.Checkpoint.PebblePath = "/var/lib/flowlens"
			},
			valid: true,
		},
		"redis without addresses": {
			mutate: func(c *ImporterConfiguration) { c.Checkpoint.Type = StoreRedis },
		},
		"zeebe enabled without name": {
			mutate: func(c *ImporterConfiguration) {
				c.Zeebe = ZeebeConfiguration{Enabled: true, PartitionCount: 3, PageSize: 100}
			},
		},
		"zeebe name clashes with engine": {
			mutate: func(c *ImporterConfiguration) {
				c.Zeebe = ZeebeConfiguration{Enabled: true, Name: "engine-2", PartitionCount: 3, PageSize: 100}
			},
		},
		"zeebe disabled": {
			mutate: func(c *ImporterConfiguration) { c.Zeebe = ZeebeConfiguration{} },
			valid:  true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_ReportsInvalidField(t *testing.T) {
	c := validConfig()
	c.Scheduler.Interval = 0

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, c.Validate(), &validationErrors)
	require.Len(t, validationErrors, 1)
	assert.Equal(t, "ImporterConfiguration.Scheduler.Interval", validationErrors[0].Namespace())
	assert.Equal(t, "required", validationErrors[0].Tag())
}
