//go:build go1.18

package domain

import "testing"

// FuzzParseAccountID checks that parsing never panics and that accepted input
// round-trips through String.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add(aliceHex)
	f.Add("0x0000000000000000000000000000000000000000000000000000000000000000")
	f.Add("'; DROP TABLE accounts;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil {
			return
		}
		if id.IsZero() {
			t.Fatal("zero account accepted")
		}
		back, err := ParseAccountID(id.String())
		if err != nil {
			t.Fatalf("valid account failed round-trip: %v", err)
		}
		if back != id {
			t.Fatal("round-trip changed account value")
		}
	})
}
