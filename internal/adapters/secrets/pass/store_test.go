package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutUsesPassInsertWithNamespace(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			called = true
			assert.Equal(t, []string{"insert", "-m", "-f", "reach/linkedin/acc-1/cookies"}, args)
			assert.Equal(t, "jar-blob\n", input)
			return "", "", nil
		},
	}

	err := store.Put(context.Background(), "linkedin/acc-1/cookies", "jar-blob")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStoreGetUsesPassShowAndTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"show", "reach/linkedin/acc-1/cookies"}, args)
			assert.Empty(t, input)
			return "jar-blob\n", "", nil
		},
	}

	value, err := store.Get(context.Background(), "linkedin/acc-1/cookies")
	require.NoError(t, err)
	assert.Equal(t, "jar-blob", value)
}

func TestStoreDeleteUsesPassRemove(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"rm", "-f", "reach/linkedin/acc-1/cookies"}, args)
			assert.Empty(t, input)
			return "", "", nil
		},
	}

	err := store.Delete(context.Background(), "linkedin/acc-1/cookies")
	require.NoError(t, err)
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "entry not found", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "linkedin/acc-1/cookies")
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "linkedin/acc-1/cookies")
	assert.ErrorContains(t, err, "entry not found")
}
