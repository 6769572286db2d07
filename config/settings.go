// Package config holds the settings used to deliver stage metrics, and the stores which persist
// them alongside the rolling error log.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Settings configure where and how stage metrics are delivered.
type Settings struct {
	EndpointURL     string `yaml:"endpoint_url" mapstructure:"endpoint_url" validate:"required,http_url"`
	Username        string `yaml:"username" mapstructure:"username" validate:"required"`
	Password        string `yaml:"password" mapstructure:"password" validate:"required"`
	TrustSelfSigned bool   `yaml:"trust_self_signed" mapstructure:"trust_self_signed"`
	ControllerName  string `yaml:"controller_name" mapstructure:"controller_name"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the settings. Problems which make delivery impossible are returned as an error;
// advisory problems are returned as warnings.
func (s Settings) Validate() (warnings []string, err error) {
	var problems []string
	if vErr := getValidator().Struct(s); vErr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(vErr, &fieldErrs) {
			return nil, fmt.Errorf("config: %w", vErr)
		}
		for _, fe := range fieldErrs {
			switch {
			case fe.Tag() == "http_url":
				warnings = append(warnings, "endpoint URL should start with http:// or https://")
			case fe.Field() == "EndpointURL":
				problems = append(problems, "please set an endpoint URL")
			case fe.Field() == "Username":
				problems = append(problems, "please set a username")
			case fe.Field() == "Password":
				problems = append(problems, "please set a password")
			default:
				problems = append(problems, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
			}
		}
	}
	if strings.TrimSpace(s.ControllerName) == "" {
		warnings = append(warnings, "controller name is optional but recommended for identifying different controllers")
	}
	if len(problems) > 0 {
		return warnings, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return warnings, nil
}
