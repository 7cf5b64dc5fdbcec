package registry

import (
	"errors"
	"testing"

	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	valid bool
}

func (c *fakeConfig) Validate() error {
	if !c.valid {
		return errors.New("clientSecret is required")
	}
	return nil
}

func stubFactory(built *spi.Connector) spi.Factory {
	return func(args spi.FactoryArgs) (*spi.Connector, error) {
		return built, nil
	}
}

func TestInitInstanceUnknownType(t *testing.T) {
	r := New()
	_, err := r.InitInstance("i1", "graph", "1.0.0", nil)
	require.Error(t, err)
	assert.True(t, cherrors.IsType(err, cherrors.ErrorTypeUnknownConnectorType))
}

func TestInitInstanceRunsConfigBuilderAndValidate(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFactory("graph", "1.0.0", stubFactory(&spi.Connector{})))
	r.RegisterConfigBuilder("graph", "1.0.0", func(raw map[string]interface{}) (spi.Config, error) {
		valid, _ := raw["clientSecret"].(string)
		return &fakeConfig{valid: valid != ""}, nil
	})

	_, err := r.InitInstance("i1", "graph", "1.0.0", map[string]interface{}{"clientSecret": ""})
	require.Error(t, err)
	assert.True(t, cherrors.IsType(err, cherrors.ErrorTypeConfigInvalid))

	inst, err := r.InitInstance("i2", "graph", "1.0.0", map[string]interface{}{"clientSecret": "shh"})
	require.NoError(t, err)
	assert.Equal(t, "i2", inst.ID)
}

func TestGetMissingInstance(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, cherrors.IsType(err, cherrors.ErrorTypeConnectorNotFound))
}

func TestDuplicateFactoryRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFactory("graph", "1.0.0", stubFactory(&spi.Connector{})))
	err := r.RegisterFactory("graph", "1.0.0", stubFactory(&spi.Connector{}))
	require.Error(t, err)
}

func TestGetVersionsAscendingAndLatest(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFactory("graph", "2.0.0", stubFactory(&spi.Connector{})))
	require.NoError(t, r.RegisterFactory("graph", "1.5.0", stubFactory(&spi.Connector{})))
	require.NoError(t, r.RegisterFactory("graph", "1.10.0", stubFactory(&spi.Connector{})))

	assert.Equal(t, []string{"1.5.0", "1.10.0", "2.0.0"}, r.GetVersions("graph"))
	assert.Equal(t, "2.0.0", r.GetLatestVersion("graph"))
}

func TestInitInstanceCountsSucceedIndependently(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFactory("graph", "1.0.0", stubFactory(&spi.Connector{})))

	initialized := 0
	for i := 0; i < 3; i++ {
		if _, err := r.InitInstance("id", "graph", "1.0.0", nil); err == nil {
			initialized++
		}
	}
	assert.Equal(t, 3, initialized)
	assert.Len(t, r.IDs(), 1)
}
