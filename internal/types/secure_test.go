package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString_Redaction(t *testing.T) {
	secret := SecretString("postgres://user:hunter2@db:5432/scorepipe")

	assert.Equal(t, "***REDACTED***", secret.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", secret))
	assert.NotContains(t, fmt.Sprintf("%v", secret), "hunter2")

	raw, err := json.Marshal(struct {
		URL SecretString `json:"url"`
	}{URL: secret})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"***REDACTED***"}`, string(raw))
}

func TestSecretString_Unmask(t *testing.T) {
	secret := SecretString("postgres://user:hunter2@db:5432/scorepipe")
	assert.Equal(t, "postgres://user:hunter2@db:5432/scorepipe", secret.Unmask())
}
