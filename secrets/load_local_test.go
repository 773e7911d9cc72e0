package secrets_test

import (
	"context"
	"testing"

	"github.com/m-lab/slackhook/secrets"
)

func TestLocalConfig_LoadSigningSecret(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		want    string
		wantErr bool
	}{
		{
			name: "success",
			file: "testdata/signing_secret",
			want: "8f742231b10e8888abcd99yyyzzz85a5",
		},
		{
			name:    "error-badfile",
			file:    "not-testdata/file-does-not-exist",
			wantErr: true,
		},
		{
			name:    "error-empty-secret",
			file:    "testdata/empty_secret",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := secrets.NewLocalConfig()
			got, err := c.LoadSigningSecret(context.Background(), nil, tt.file)
			if (err != nil) != tt.wantErr {
				t.Errorf("LocalConfig.LoadSigningSecret() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if string(got) != tt.want {
				t.Errorf("LocalConfig.LoadSigningSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}
