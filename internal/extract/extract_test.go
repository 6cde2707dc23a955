package extract

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

var testParams = &chaincfg.MainNetParams

func fakePubKey(prefix byte, fill byte) []byte {
	key := make([]byte, 33)
	key[0] = prefix
	for i := 1; i < len(key); i++ {
		key[i] = fill
	}
	return key
}

func TestPubKeyHashScript(t *testing.T) {
	hash := bytes.Repeat([]byte{0xab}, 20)

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	parsed := Parse(script)
	require.Equal(t, PubKeyHash, parsed.Class)
	require.Equal(t, hash, parsed.Hash)

	addrs := Addresses(script, testParams)
	require.Len(t, addrs, 1)

	want, err := btcutil.NewAddressPubKeyHash(hash, testParams)
	require.NoError(t, err)
	require.Equal(t, want.EncodeAddress(), addrs[0].EncodeAddress())
}

func TestScriptHashScript(t *testing.T) {
	hash := bytes.Repeat([]byte{0xcd}, 20)

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
	require.NoError(t, err)

	parsed := Parse(script)
	require.Equal(t, ScriptHash, parsed.Class)

	addrs := Addresses(script, testParams)
	require.Len(t, addrs, 1)

	want, err := btcutil.NewAddressScriptHashFromHash(hash, testParams)
	require.NoError(t, err)
	require.Equal(t, want.EncodeAddress(), addrs[0].EncodeAddress())
}

func TestPubKeyScript(t *testing.T) {
	key := fakePubKey(0x02, 0x11)

	script, err := txscript.NewScriptBuilder().
		AddData(key).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	parsed := Parse(script)
	require.Equal(t, PubKey, parsed.Class)
	require.Equal(t, key, parsed.PubKey)

	addrs := Addresses(script, testParams)
	require.Len(t, addrs, 1)

	want, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key), testParams)
	require.NoError(t, err)
	require.Equal(t, want.EncodeAddress(), addrs[0].EncodeAddress())
}

func TestMultisigScriptOneAddressPerSigner(t *testing.T) {
	keys := [][]byte{
		fakePubKey(0x02, 0x01),
		fakePubKey(0x03, 0x02),
		fakePubKey(0x02, 0x03),
	}

	builder := txscript.NewScriptBuilder().AddOp(txscript.OP_2)
	for _, key := range keys {
		builder.AddData(key)
	}
	script, err := builder.
		AddOp(txscript.OP_3).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	parsed := Parse(script)
	require.Equal(t, Multisig, parsed.Class)
	require.Equal(t, keys, parsed.PubKeys)

	addrs := Addresses(script, testParams)
	require.Len(t, addrs, 3)

	// each signer's own key is hashed, so all three addresses differ
	for i, key := range keys {
		want, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key), testParams)
		require.NoError(t, err)
		require.Equal(t, want.EncodeAddress(), addrs[i].EncodeAddress())
	}
	require.NotEqual(t, addrs[0].EncodeAddress(), addrs[1].EncodeAddress())
	require.NotEqual(t, addrs[1].EncodeAddress(), addrs[2].EncodeAddress())
}

func TestMultisigKeyCountMismatchIsNonStandard(t *testing.T) {
	// claims 3 keys but carries 2
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_2).
		AddData(fakePubKey(0x02, 0x01)).
		AddData(fakePubKey(0x03, 0x02)).
		AddOp(txscript.OP_3).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	require.Equal(t, NonStandard, Parse(script).Class)
	require.Empty(t, Addresses(script, testParams))
}

func TestNonStandardScripts(t *testing.T) {
	dataCarrier, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData([]byte("hello")).
		Script()
	require.NoError(t, err)

	for name, script := range map[string][]byte{
		"empty":        nil,
		"data carrier": dataCarrier,
		"truncated":    {txscript.OP_DUP, txscript.OP_HASH160},
		"malformed":    {txscript.OP_PUSHDATA1}, // push with no length byte
	} {
		require.Equal(t, NonStandard, Parse(script).Class, name)
		require.Empty(t, Addresses(script, testParams), name)
	}
}
