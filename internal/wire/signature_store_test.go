package wire

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureStore_LongestWins(t *testing.T) {
	ClearSignature()
	defer ClearSignature()

	StoreSignature("short-one")
	StoreSignature("a")
	assert.Equal(t, "short-one", GetSignature())

	StoreSignature("a-much-longer-replacement-signature")
	assert.Equal(t, "a-much-longer-replacement-signature", GetSignature())
}

func TestSignatureStore_IgnoresEmpty(t *testing.T) {
	ClearSignature()
	defer ClearSignature()

	StoreSignature("kept")
	StoreSignature("")
	assert.Equal(t, "kept", GetSignature())
}

func TestSignatureStore_OrderIndependent(t *testing.T) {
	ClearSignature()
	defer ClearSignature()

	var wg sync.WaitGroup
	sigs := []string{"aaaaaaaaaaaa", "aa", "aaaaaaaaaaaaaaaaaaaa", "aaaa"}
	for _, s := range sigs {
		wg.Add(1)
		go func(sig string) {
			defer wg.Done()
			StoreSignature(sig)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaa", GetSignature())
}

func TestSignatureStore_HasValidSignature(t *testing.T) {
	ClearSignature()
	defer ClearSignature()

	assert.False(t, HasValidSignature())
	StoreSignature("too-short-but-ten-plus")
	assert.True(t, HasValidSignature())
	ClearSignature()
	assert.False(t, HasValidSignature())
}
