package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-inject/framework/errs"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := errs.ClassNotFound("Dog")

	assert.True(t, errors.Is(err, errs.ErrClassNotFound))
	assert.False(t, errors.Is(err, errs.ErrFactoryNotFound))
}

func TestError_IsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("resolving UserManager: %w", errs.CyclicDependency("A", []string{"A", "B"}))

	assert.True(t, errors.Is(err, errs.ErrCyclicDependency))
	assert.Equal(t, errs.CodeCyclicDependency, errs.CodeOf(err))
	assert.True(t, errs.Has(err, errs.CodeCyclicDependency))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, errs.Code(""), errs.CodeOf(errors.New("boom")))
}

func TestFactoryNotFound_SortsCandidates(t *testing.T) {
	err := errs.FactoryNotFound("~Animal", "Dog", "Cat")

	assert.Equal(t, []string{"Cat", "Dog"}, err.Candidates)
	assert.Contains(t, err.Error(), "candidates: Cat,Dog")
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestCyclicDependency_PathIncludesRepeatedExpression(t *testing.T) {
	err := errs.CyclicDependency("A", []string{"A", "B"})

	assert.Equal(t, []string{"A", "B", "A"}, err.Path)
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestWithMeta_DoesNotMutateOriginal(t *testing.T) {
	base := errs.New(errs.CodeScopeNotFound, "x")
	derived := base.WithMeta("scope", "req")

	assert.Nil(t, base.Metadata)
	assert.Equal(t, "req", derived.Metadata["scope"])
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := errs.ConstructionFailed("MySQLConn", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, errs.CodeConstructionFailed, errs.CodeOf(err))
}
