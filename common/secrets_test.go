/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	secrets_test.go
*/
package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcealRevealRoundTrip(t *testing.T) {
	for _, plain := range []string{
		"",
		"hunter2",
		"a-much-longer-client-secret-with-symbols-!@#$%^&*()",
		"ünïcödé 秘密",
	} {
		stored := Conceal(plain)
		require.True(t, strings.HasPrefix(stored, "enc:"), "plain %q", plain)
		if plain != "" {
			assert.NotContains(t, stored[4:], plain, "plain %q should not appear in stored form", plain)
		}
		assert.Equal(t, plain, Reveal(stored), "plain %q", plain)
	}
}

func TestRevealPassthrough(t *testing.T) {
	// values without the prefix are legacy plaintext
	assert.Equal(t, "plaintext-secret", Reveal("plaintext-secret"))
	assert.Equal(t, "", Reveal(""))
}

func TestRevealCorruptValue(t *testing.T) {
	// not valid base64: returned as stored rather than dropped
	assert.Equal(t, "enc:!!!not-base64!!!", Reveal("enc:!!!not-base64!!!"))
}

func TestConcealDiffersFromPlain(t *testing.T) {
	a := Conceal("same-input")
	b := Conceal("same-input")
	// the keystream is fixed, so equal inputs conceal identically
	assert.Equal(t, a, b)
	assert.NotEqual(t, "same-input", a)
}
