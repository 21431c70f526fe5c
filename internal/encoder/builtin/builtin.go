// Package builtin registers all built-in encoders with the default registry.
package builtin

import (
	"firestige.xyz/nfcsniff/internal/encoder"
	"firestige.xyz/nfcsniff/internal/encoder/pcap"
	"firestige.xyz/nfcsniff/internal/encoder/relay"
	"firestige.xyz/nfcsniff/internal/encoder/text"
)

func init() {
	mustRegister(text.Name, text.New)
	mustRegister(relay.Name, relay.New)
	mustRegister(pcap.Name, pcap.New)
}

func mustRegister(name string, f encoder.Factory) {
	if err := encoder.Register(name, f); err != nil {
		panic(err)
	}
}
