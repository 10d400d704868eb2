package configuration

import (
	"github.com/go-playground/validator/v10"
)

func (c ImporterConfiguration) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(importerConfigurationValidation, ImporterConfiguration{})
	return validate.Struct(c)
}

func importerConfigurationValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(ImporterConfiguration)
	aliases := make(map[string]bool, len(c.Engines))
	for _, engine := range c.Engines {
		if aliases[engine.Alias] {
			sl.ReportError(c.Engines, "Engines", "Engines", "unique", engine.Alias)
		}
		aliases[engine.Alias] = true
	}
	if c.Zeebe.Enabled && aliases[c.Zeebe.Name] {
		sl.ReportError(c.Zeebe.Name, "Name", "Name", "unique", c.Zeebe.Name)
	}
	if c.Checkpoint.Type == StoreRedis && len(c.Checkpoint.Redis.Addrs) == 0 {
		sl.ReportError(c.Checkpoint.Redis.Addrs, "Addrs", "Addrs", "required", "")
	}
}

