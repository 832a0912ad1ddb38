package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator returns a validator that reports fields by their config key.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the configuration for a command. mode is one of analyze,
// buffers, nearest or crossk.
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, translate(fe))
		}
	}

	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			problems = append(problems, key+" is required")
		}
	}

	switch mode {
	case "analyze", "nearest":
		require("inputs.irs.path", c.Inputs.IRS.Path)
		require("inputs.iip.path", c.Inputs.IIP.Path)
	case "buffers":
		require("inputs.irs.path", c.Inputs.IRS.Path)
	case "crossk":
		require("inputs.irs.path", c.Inputs.IRS.Path)
		require("inputs.iip.path", c.Inputs.IIP.Path)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "analyze" || mode == "crossk" {
		switch c.CrossK.Window {
		case "extent":
			if len(c.CrossK.Extent) != 4 {
				problems = append(problems, "crossk.extent is required when crossk.window is extent")
			}
		case "boundary":
			require("inputs.boundary.path", c.Inputs.Boundary.Path)
		}
	}

	if c.Store.Driver == "postgres" {
		require("store.database_url", c.Store.DatabaseURL)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// translate turns a validator failure into "key message" using the dotted
// config key.
func translate(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", key, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", key, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", key, fe.Param())
	case "unique":
		return key + " must not contain duplicates"
	case "len":
		return fmt.Sprintf("%s must have exactly %s entries", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}
