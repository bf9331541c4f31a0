/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	secrets.go: Obfuscation of credentials stored in config files
*/
package common

import (
	"encoding/base64"
	"strings"
)

// secretPrefix marks a config value as obfuscated. Values without the prefix
// are treated as plaintext and passed through unchanged, which keeps
// hand-edited config files working.
const secretPrefix = "enc:"

const (
	lcgSeed = 0xA3C59AC3
	lcgMulA = 1664525
	lcgIncC = 1013904223
)

// keystream yields the next obfuscation byte and advances the generator.
func lcgNext(state uint32) (uint32, byte) {
	state = state*lcgMulA + lcgIncC
	return state, byte(state >> 24)
}

// Conceal obfuscates a secret for storage in a config file. This is not
// encryption; it only keeps credentials out of casual view.
func Conceal(plain string) string {
	buf := []byte(plain)
	state := uint32(lcgSeed)
	var k byte
	for i := range buf {
		state, k = lcgNext(state)
		buf[i] = byte((int(buf[i]^k) + i%256) & 0xFF)
	}
	return secretPrefix + base64.URLEncoding.EncodeToString(buf)
}

// Reveal recovers a secret written by Conceal. Values without the marker
// prefix are returned as-is, as are values whose payload fails to decode.
func Reveal(stored string) string {
	if !strings.HasPrefix(stored, secretPrefix) {
		return stored
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(stored, secretPrefix))
	if err != nil {
		Log().Warnw("secret value failed to decode, using raw value", "error", err)
		return stored
	}
	state := uint32(lcgSeed)
	var k byte
	for i := range raw {
		state, k = lcgNext(state)
		raw[i] = byte((int(raw[i])-i%256)&0xFF) ^ k
	}
	return string(raw)
}
