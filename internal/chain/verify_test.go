package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sourcechain/internal/ir"
)

// forceHead stores h and points the head at it, bypassing PushEntry.
func forceHead(t *testing.T, c *SourceChain, h ir.ChainHeader) ir.Address {
	t.Helper()
	ctx := context.Background()
	data, err := h.Canonical()
	require.NoError(t, err)
	addr, err := c.Store().Put(ctx, data)
	require.NoError(t, err)
	_, err = c.Head().Set(ctx, addr.Ptr())
	require.NoError(t, err)
	return addr
}

func TestVerifyHealthyChain(t *testing.T) {
	c := buildABA(t)
	assert.NoError(t, c.Verify(context.Background()))
}

func TestVerifyEmptyChain(t *testing.T) {
	assert.NoError(t, newTestChain(t).Verify(context.Background()))
}

func TestVerifyDetectsWrongSameTypeLink(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	first := mustCommit(t, c, "A", "first")

	e := ir.NewEntry("A", "second")
	data, err := e.Canonical()
	require.NoError(t, err)
	_, err = c.Store().Put(ctx, data)
	require.NoError(t, err)

	// Skips the same-type link to the first A.
	forceHead(t, c, ir.ChainHeader{
		EntryType:    "A",
		Link:         first.MustAddress().Ptr(),
		EntryAddress: e.MustAddress(),
	})

	err = c.Verify(ctx)
	require.Error(t, err)
	assert.True(t, IsConsistencyError(err))
	assert.Contains(t, err.Error(), "link_same_type")
}

func TestVerifyDetectsMissingEntry(t *testing.T) {
	c := newTestChain(t)
	forceHead(t, c, ir.ChainHeader{EntryType: "A", EntryAddress: ir.NewEntry("A", "ghost").MustAddress()})

	err := c.Verify(context.Background())
	assert.True(t, IsConsistencyError(err))
}

func TestVerifyDetectsTypeMismatch(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	e := ir.NewEntry("B", "typed B")
	data, err := e.Canonical()
	require.NoError(t, err)
	_, err = c.Store().Put(ctx, data)
	require.NoError(t, err)
	forceHead(t, c, ir.ChainHeader{EntryType: "A", EntryAddress: e.MustAddress()})

	err = c.Verify(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match entry type")
}

func TestSignedChain(t *testing.T) {
	ctx := context.Background()
	signer, err := NewEd25519SignerFromSeed("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	c := newTestChain(t, WithSigner(signer))

	h := mustCommit(t, c, "A", "signed")
	assert.NotEmpty(t, h.Signature)
	assert.True(t, signer.Verify(h.EntryAddress, h.Signature))
	require.NoError(t, c.Verify(ctx))

	// Another key rejects the signature.
	other, err := GenerateEd25519Signer()
	require.NoError(t, err)
	assert.False(t, other.Verify(h.EntryAddress, h.Signature))
	assert.NoError(t, c.Clone().Verify(ctx))

	wrongKey := New(c.Store(), c.Head(), WithSigner(other))
	err = wrongKey.Verify(ctx)
	assert.True(t, IsConsistencyError(err))
}

func TestSignatureDeterministic(t *testing.T) {
	signer, err := NewEd25519SignerFromSeed("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	s1, err := signer.Sign("abc")
	require.NoError(t, err)
	s2, err := signer.Sign("abc")
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 128)
	assert.False(t, signer.Verify("abc", "not hex"))
}

func TestSignerSeedValidation(t *testing.T) {
	_, err := NewEd25519SignerFromSeed("zz")
	assert.Error(t, err)
	_, err = NewEd25519SignerFromSeed("00")
	assert.Error(t, err)
}
