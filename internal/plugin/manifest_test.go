package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	data := []byte(`
manifest_version: 1
process_id: refund
version: 2.0.0
handler: refund-handler
name: Refund
description: Issues refunds
category: payments
capabilities: [refund, partial-refund]
permissions: [refund.write]
roles: [ops]
features: [refunds-enabled]
tags: [payments, money]
`)

	m, err := ParseManifest(data)
	require.NoError(t, err)

	assert.Equal(t, "refund", m.ProcessID)
	assert.Equal(t, "2.0.0", m.Version)
	assert.Equal(t, "refund-handler", m.Handler)
	assert.Equal(t, []string{"refund", "partial-refund"}, m.Capabilities)
	assert.Equal(t, []string{"refund.write"}, m.Permissions)
}

func TestParseManifestRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing manifest_version",
			yaml:    "process_id: a\nversion: 1.0.0\nhandler: h\n",
			wantErr: "manifest_version is required",
		},
		{
			name:    "unsupported manifest_version",
			yaml:    "manifest_version: 99\nprocess_id: a\nversion: 1.0.0\nhandler: h\n",
			wantErr: "unsupported manifest_version",
		},
		{
			name:    "missing process_id",
			yaml:    "manifest_version: 1\nversion: 1.0.0\nhandler: h\n",
			wantErr: "process_id is required",
		},
		{
			name:    "missing version",
			yaml:    "manifest_version: 1\nprocess_id: a\nhandler: h\n",
			wantErr: "version is required",
		},
		{
			name:    "missing handler",
			yaml:    "manifest_version: 1\nprocess_id: a\nversion: 1.0.0\n",
			wantErr: "handler is required",
		},
		{
			name:    "self replacement",
			yaml:    "manifest_version: 1\nprocess_id: a\nversion: 1.0.0\nhandler: h\ndeprecated: true\nreplaced_by: a\n",
			wantErr: "replaced_by",
		},
		{
			name:    "not yaml",
			yaml:    "{{{{",
			wantErr: "parse manifest YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManifestToMetadata(t *testing.T) {
	m := &Manifest{
		ManifestVersion: 1,
		ProcessID:       "refund",
		Version:         "1.0.0",
		Handler:         "refund-handler",
		Deprecated:      true,
		ReplacedBy:      "refund-v2",
		Permissions:     []string{"refund.write"},
		Vanilla:         true,
	}

	md := m.ToMetadata("manifest")
	assert.Equal(t, "refund", md.ProcessID)
	assert.Equal(t, "manifest", md.SourceType)
	assert.True(t, md.Deprecated)
	assert.Equal(t, "refund-v2", md.ReplacedBy)
	assert.True(t, md.Vanilla)
	assert.NoError(t, md.Validate())
}
