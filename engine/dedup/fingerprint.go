// Package dedup computes content fingerprints for duplicate detection.
// An exact duplicate shares the sha256 fingerprint of its normalized body;
// a near duplicate sits within a small Hamming distance on the 64-bit
// simhash of its word shingles.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// ShingleSize is the word-window width for simhash features.
const ShingleSize = 3

// NearThreshold is the max Hamming distance at which two simhashes are
// considered near duplicates.
const NearThreshold = 3

// Fingerprint returns the sha256 hex digest of the normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Simhash computes a 64-bit simhash over word shingles of the normalized text.
func Simhash(text string) uint64 {
	words := strings.Fields(normalize(text))
	if len(words) == 0 {
		return 0
	}

	var weights [64]int
	emit := func(feature string) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		v := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if v&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	if len(words) < ShingleSize {
		emit(strings.Join(words, " "))
	} else {
		for i := 0; i+ShingleSize <= len(words); i++ {
			emit(strings.Join(words[i:i+ShingleSize], " "))
		}
	}

	var out uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// Distance returns the Hamming distance between two simhashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Near reports whether two simhashes are within NearThreshold.
func Near(a, b uint64) bool {
	return Distance(a, b) <= NearThreshold
}

// normalize lowercases, strips punctuation, and collapses whitespace so
// cosmetic edits do not change the fingerprint.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
