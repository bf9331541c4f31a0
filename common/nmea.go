/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	nmea.go: NMEA sentence framing helpers
*/
package common

import (
	"strconv"
	"strings"
)

// ValidateNMEAChecksum determines if a string is a properly formatted NMEA
// sentence with a valid checksum.
//
// If the input string is valid, output is the input stripped of the "$" token
// and checksum, along with a boolean 'true'. If the input string is the
// incorrect format, or the checksum is missing/invalid, "" and 'false' are
// returned.
//
// Checksum is calculated as XOR of all bytes between "$" and "*"
func ValidateNMEAChecksum(s string) (string, bool) {
	if !(strings.HasPrefix(s, "$") && strings.Contains(s, "*")) {
		return "", false
	}

	// strip leading "$" and split at "*"
	sSplit := strings.Split(strings.TrimPrefix(s, "$"), "*")
	sOut := sSplit[0]
	sCS := sSplit[1]

	if len(sCS) < 2 {
		return "", false
	}

	cs, err := strconv.ParseUint(sCS[:2], 16, 8)
	if err != nil {
		return "", false
	}

	csCalc := byte(0)
	for i := range sOut {
		csCalc = csCalc ^ byte(sOut[i])
	}

	if csCalc != byte(cs) {
		return "", false
	}

	return sOut, true
}
