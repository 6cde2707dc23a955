// Package extract classifies output scripts and derives the addresses that
// own them. Classification happens once, into a closed set of script
// shapes; anything unrecognized yields no addresses.
package extract

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

type ScriptClass int

const (
	NonStandard ScriptClass = iota
	PubKeyHash
	ScriptHash
	Multisig
	PubKey
)

func (c ScriptClass) String() string {
	switch c {
	case PubKeyHash:
		return "pubkeyhash"
	case ScriptHash:
		return "scripthash"
	case Multisig:
		return "multisig"
	case PubKey:
		return "pubkey"
	default:
		return "nonstandard"
	}
}

// ParsedScript is an output script reduced to its shape plus the payload
// needed to derive addresses from it.
type ParsedScript struct {
	Class ScriptClass

	// Hash is the 20-byte hash chunk for PubKeyHash and ScriptHash.
	Hash []byte

	// PubKey is the sole key of a PubKey script.
	PubKey []byte

	// PubKeys are the signer keys of a Multisig script, in script order.
	PubKeys [][]byte
}

type chunk struct {
	op   byte
	data []byte
}

func parseChunks(script []byte) ([]chunk, bool) {
	var chunks []chunk
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		chunks = append(chunks, chunk{op: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	if tokenizer.Err() != nil {
		return nil, false
	}
	return chunks, true
}

func smallInt(op byte) (int, bool) {
	if op >= txscript.OP_1 && op <= txscript.OP_16 {
		return int(op-txscript.OP_1) + 1, true
	}
	return 0, false
}

func isCompressedOrUncompressedKey(data []byte) bool {
	switch len(data) {
	case 33:
		return data[0] == 0x02 || data[0] == 0x03
	case 65:
		return data[0] == 0x04
	default:
		return false
	}
}

// Parse classifies script. Malformed scripts come back NonStandard.
func Parse(script []byte) ParsedScript {
	chunks, ok := parseChunks(script)
	if !ok {
		return ParsedScript{Class: NonStandard}
	}

	switch {
	case isPubKeyHash(chunks):
		return ParsedScript{Class: PubKeyHash, Hash: chunks[2].data}
	case isScriptHash(chunks):
		return ParsedScript{Class: ScriptHash, Hash: chunks[1].data}
	case isMultisig(chunks):
		keys := make([][]byte, 0, len(chunks)-3)
		for _, c := range chunks[1 : len(chunks)-2] {
			keys = append(keys, c.data)
		}
		return ParsedScript{Class: Multisig, PubKeys: keys}
	case isPubKey(chunks):
		return ParsedScript{Class: PubKey, PubKey: chunks[0].data}
	default:
		return ParsedScript{Class: NonStandard}
	}
}

// OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG
func isPubKeyHash(chunks []chunk) bool {
	return len(chunks) == 5 &&
		chunks[0].op == txscript.OP_DUP &&
		chunks[1].op == txscript.OP_HASH160 &&
		len(chunks[2].data) == 20 &&
		chunks[3].op == txscript.OP_EQUALVERIFY &&
		chunks[4].op == txscript.OP_CHECKSIG
}

// OP_HASH160 <20-byte hash> OP_EQUAL
func isScriptHash(chunks []chunk) bool {
	return len(chunks) == 3 &&
		chunks[0].op == txscript.OP_HASH160 &&
		len(chunks[1].data) == 20 &&
		chunks[2].op == txscript.OP_EQUAL
}

// OP_m <key>... OP_n OP_CHECKMULTISIG
func isMultisig(chunks []chunk) bool {
	if len(chunks) < 4 {
		return false
	}
	required, ok := smallInt(chunks[0].op)
	if !ok {
		return false
	}
	if chunks[len(chunks)-1].op != txscript.OP_CHECKMULTISIG {
		return false
	}
	total, ok := smallInt(chunks[len(chunks)-2].op)
	if !ok {
		return false
	}

	keys := chunks[1 : len(chunks)-2]
	if len(keys) != total || required > total {
		return false
	}
	for _, c := range keys {
		if !isCompressedOrUncompressedKey(c.data) {
			return false
		}
	}
	return true
}

// <pubkey> OP_CHECKSIG
func isPubKey(chunks []chunk) bool {
	return len(chunks) == 2 &&
		isCompressedOrUncompressedKey(chunks[0].data) &&
		chunks[1].op == txscript.OP_CHECKSIG
}

// Addresses derives the owning addresses for script on the given network.
// The returned slice is empty for nonstandard, empty and data-carrying
// scripts; such outputs are recorded but attributed to no one.
func Addresses(script []byte, params *chaincfg.Params) []btcutil.Address {
	parsed := Parse(script)

	switch parsed.Class {
	case PubKeyHash:
		addr, err := btcutil.NewAddressPubKeyHash(parsed.Hash, params)
		if err != nil {
			return nil
		}
		return []btcutil.Address{addr}

	case ScriptHash:
		addr, err := btcutil.NewAddressScriptHashFromHash(parsed.Hash, params)
		if err != nil {
			return nil
		}
		return []btcutil.Address{addr}

	case Multisig:
		// Each signer key is hashed on its own; one address per signer.
		addrs := make([]btcutil.Address, 0, len(parsed.PubKeys))
		for _, key := range parsed.PubKeys {
			addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key), params)
			if err != nil {
				continue
			}
			addrs = append(addrs, addr)
		}
		return addrs

	case PubKey:
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(parsed.PubKey), params)
		if err != nil {
			return nil
		}
		return []btcutil.Address{addr}

	default:
		return nil
	}
}
