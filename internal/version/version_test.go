package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringCombinesVersionAndBuildMetadata(t *testing.T) {
	i := &Info{Version: "v1.2.3", BuildMetadata: "abc"}
	assert.Equal(t, "v1.2.3+abc", i.String())
}

func TestStringOmitsBuildMetadataWhenEmpty(t *testing.T) {
	i := &Info{Version: "v1.2.3"}
	assert.Equal(t, "v1.2.3", i.String())
}

func TestStringDefaultsWhenVersionEmpty(t *testing.T) {
	i := &Info{}
	assert.Equal(t, "v0.0.0", i.String())
}

func TestGetInfoReflectsPackageVariables(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "v9.9.9"
	assert.Equal(t, "v9.9.9", GetInfo().Version)
}
