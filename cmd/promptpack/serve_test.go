package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewServeConfigDefaults(t *testing.T) {
	config := NewServeConfig()
	assert.Equal(t, "127.0.0.1", config.Host)
	assert.Equal(t, 8723, config.Port)
}

func TestValidateServeConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *ServeConfig
		wantErr bool
	}{
		{"defaults", NewServeConfig(), false},
		{"localhost", &ServeConfig{Host: "localhost", Port: 8080}, false},
		{"all interfaces", &ServeConfig{Host: "0.0.0.0", Port: 8080}, false},
		{"empty host", &ServeConfig{Host: "", Port: 8080}, true},
		{"host with space", &ServeConfig{Host: "bad host", Port: 8080}, true},
		{"port zero", &ServeConfig{Host: "localhost", Port: 0}, true},
		{"port too large", &ServeConfig{Host: "localhost", Port: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServeConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatchConfigValidate(t *testing.T) {
	config := NewWatchConfig()
	assert.NoError(t, config.Validate())

	config.DebounceTime = -1
	assert.Error(t, config.Validate())
}
