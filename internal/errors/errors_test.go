package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("something broke").Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, "something broke", ee.Error())
}

func TestUnwrapPreservesChain(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("opening pack: %w", fs.ErrNotExist)
	ee := New(cause).
		Component("datastore").
		Category(CategoryNotFound).
		Context("alias", "ebird").
		Build()

	require.ErrorIs(t, ee, fs.ErrNotExist)
	assert.Equal(t, "datastore", ee.Component)
	assert.Equal(t, "ebird", ee.GetContext()["alias"])
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	a := Newf("a").Category(CategoryDatabase).Build()
	b := Newf("b").Category(CategoryDatabase).Build()
	c := Newf("c").Category(CategoryValidation).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestPriorityValidation(t *testing.T) {
	t.Parallel()

	ee := Newf("x").Priority("bogus").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)

	ee = Newf("x").Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, ee.Priority)
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := Newf("x").Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.GetContext()["k"])
}
