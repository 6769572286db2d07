package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thought-machine/stagemetrics/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		description  string
		settings     config.Settings
		wantErr      string
		wantWarnings []string
	}{
		{
			description: "complete",
			settings: config.Settings{
				EndpointURL:    "https://metrics.example.com",
				Username:       "u",
				Password:       "p",
				ControllerName: "ci-eu-1",
			},
		},
		{
			description: "missing controller name",
			settings: config.Settings{
				EndpointURL: "http://metrics.example.com",
				Username:    "u",
				Password:    "p",
			},
			wantWarnings: []string{"controller name is optional but recommended for identifying different controllers"},
		},
		{
			description: "empty",
			settings:    config.Settings{ControllerName: "ci"},
			wantErr:     "config: please set an endpoint URL; please set a username; please set a password",
		},
		{
			description: "endpoint without a scheme",
			settings: config.Settings{
				EndpointURL:    "metrics.example.com",
				Username:       "u",
				Password:       "p",
				ControllerName: "ci",
			},
			wantWarnings: []string{"endpoint URL should start with http:// or https://"},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			warnings, err := test.settings.Validate()
			if test.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, test.wantErr, err.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, test.wantWarnings, warnings)
		})
	}
}
