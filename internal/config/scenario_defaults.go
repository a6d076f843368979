package config

// Default skip rules for generated sweeps.
//
// Two length-field corruptions produce messages that remain structurally
// parseable: when a flipped length byte happens to land exactly on the
// total size of the fields that follow it, a strict parser reads the rest
// of the message under the corrupted framing and accepts it. Servers
// legitimately complete (or cleanly reject) those exchanges, so running
// them asserts nothing. The skipped XOR value depends on which optional
// extensions the hello carries, hence the per-offer variants.

// Sweep names used by the scenario generator and the skip rules.
const (
	SweepHelloType             = "fuzz hello type"
	SweepSessionIDLen          = "fuzz session ID length"
	SweepSessionIDLenExt       = "fuzz session ID length ext"
	SweepCipherSuitesLenXOR    = "fuzz cipher suites length xor"
	SweepCipherSuitesLenSubs   = "fuzz cipher suites length subs"
	SweepCompressionLenXOR     = "fuzz compression length xor"
	SweepBareCompressionLenXOR = "fuzz bare compression length xor"
	SweepExtensionsLenXOR      = "fuzz extensions length xor"
	SweepExtensionsLenSubs     = "fuzz extensions length subs"
)

// DefaultSkipRules returns the skip rules for the stock sweeps.
func DefaultSkipRules() []SkipRule {
	return []SkipRule{
		// Compression-length XOR over the hello that carries extensions:
		// the corrupted length swallows the extensions block whole.
		{Sweep: SweepCompressionLenXOR, Value: 9},
		{Sweep: SweepCompressionLenXOR, Value: 63, ECDHE: true},
		{Sweep: SweepCompressionLenXOR, Value: 67, ECDHE: true, EMS: true},
		{Sweep: SweepCompressionLenXOR, Value: 13, EMS: true},

		// Cipher-suites-length XOR variants that extend the list to cover
		// the remaining fields exactly.
		{Sweep: SweepCipherSuitesLenXOR, Value: 56, ECDHE: true},
		{Sweep: SweepCipherSuitesLenXOR, Value: 60, ECDHE: true, EMS: true},
	}
}
