package store

import (
	"context"
	"path/filepath"
	"testing"

	"devlog-cache/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{
			name: "memory store",
			cfg:  config.StoreConfig{Type: "memory", Name: "test"},
		},
		{
			name: "filesystem store",
			cfg:  config.StoreConfig{Type: "filesystem", Name: "local", Root: filepath.Join(t.TempDir(), "store")},
		},
		{
			name:    "filesystem store requires root",
			cfg:     config.StoreConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "s3 store requires bucket",
			cfg:     config.StoreConfig{Type: "s3", Region: "auto"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.StoreConfig{Type: "carrier-pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStoreFromConfig(context.Background(), tt.cfg, testClock())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("NewStoreFromConfig() returned nil store")
			}
		})
	}
}
