// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg_test

import (
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/qingstor-incubating/qsfs-fuse/cfg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsAndDecode(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, cfg.BindFlags(flagSet))
	require.NoError(t, flagSet.Parse([]string{
		"--bucket.name=my-bucket",
		"--file-system.file-mode=640",
		"--transfer.part-size-mb=16",
	}))

	var c cfg.Config
	require.NoError(t, viper.Unmarshal(&c, viper.DecodeHook(cfg.DecodeHook()), func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }))

	assert.Equal(t, "my-bucket", c.Bucket.Name)
	assert.Equal(t, cfg.Octal(0640), c.FileSystem.FileMode)
	assert.Equal(t, 16, c.Transfer.PartSizeMb)
}

func TestValidateConfig_RejectsMissingBucket(t *testing.T) {
	c := &cfg.Config{}
	c.Logging.LogRotate.MaxFileSizeMb = 1
	c.FileCache.MaxCacheGrowFactor = 1
	c.Transfer.PartSizeMb = 1
	c.Transfer.MaxUploadParts = 1
	c.Transfer.MaxInFlightReqs = 1

	err := cfg.ValidateConfig(c)
	assert.ErrorContains(t, err, "bucket.name is required")
}

func TestRationalize_InfiniteTtl(t *testing.T) {
	c := &cfg.Config{}
	c.Metadata.TtlSecs = -1
	c.FileCache.MaxCacheGrowFactor = 0

	require.NoError(t, cfg.Rationalize(c))

	assert.Equal(t, cfg.MaxSupportedTtlInSeconds, c.Metadata.TtlSecs)
	assert.Equal(t, 1.0, c.FileCache.MaxCacheGrowFactor)
}
