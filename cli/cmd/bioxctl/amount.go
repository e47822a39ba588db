package main

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// parseAmount converts a token amount such as "12.5" into base units.
func parseAmount(s string, decimals uint8) (uint64, error) {
	whole, frac, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}

	var units uint64
	if whole != "" {
		w, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		units = w
	}
	scale := uint64(1)
	for range decimals {
		scale *= 10
	}
	hi, units := bits.Mul64(units, scale)
	if hi != 0 {
		return 0, errAmountOverflow
	}

	if frac != "" {
		f, err := strconv.ParseUint(frac+strings.Repeat("0", int(decimals)-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		var carry uint64
		units, carry = bits.Add64(units, f, 0)
		if carry != 0 {
			return 0, errAmountOverflow
		}
	}
	return units, nil
}

var errAmountOverflow = errors.New("amount overflows 64 bits")
