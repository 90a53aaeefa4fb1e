package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/videoqa/pkg/utils/json"
)

func TestOptions_RedactsPassword(t *testing.T) {
	o := NewOptions()
	o.Password = "s3cret"

	data, err := json.Marshal(o)
	assert.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
	assert.Contains(t, string(data), redactedPassword)
	assert.NotContains(t, o.String(), "s3cret")
}

func TestOptions_Validate(t *testing.T) {
	o := NewOptions()
	assert.Empty(t, o.Validate())
	assert.Equal(t, "127.0.0.1:6379", o.Addr())

	o.Port = 0
	o.Host = ""
	assert.Len(t, o.Validate(), 2)
}

func TestOptions_PasswordFromEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "from-env")
	o := NewOptions()
	o.Validate()
	assert.Equal(t, "from-env", o.Password)
}
