package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraArgs(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		args, err := ParseExtraArgs("   ")
		assert.NoError(t, err)
		assert.Nil(t, args)
	})

	t.Run("valid codec arguments", func(t *testing.T) {
		args, err := ParseExtraArgs(`-c:v libx264 -preset veryfast -x264-params "keyint=60:min-keyint=60"`)
		require.NoError(t, err)
		assert.Equal(t, []string{"-c:v", "libx264", "-preset", "veryfast", "-x264-params", "keyint=60:min-keyint=60"}, args)
	})

	t.Run("reserved flag", func(t *testing.T) {
		_, err := ParseExtraArgs(`-i /etc/passwd`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-i is managed by slidecast")
	})

	t.Run("disallowed character (semicolon)", func(t *testing.T) {
		_, err := ParseExtraArgs(`-preset fast; ls`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disallowed character found in argument: fast;")
	})

	t.Run("disallowed character (dollar)", func(t *testing.T) {
		_, err := ParseExtraArgs(`-vf "crop=$(($RANDOM))"`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disallowed character found in argument: crop=$(($RANDOM))")
	})

	t.Run("unterminated quote", func(t *testing.T) {
		_, err := ParseExtraArgs(`-vf "scale=1280:-1`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid encoder argument syntax")
	})
}
