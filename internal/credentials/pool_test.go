package credentials

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/noncmra/internal/shared"
)

func newTestPool(limits ...int) *Pool {
	creds := make([]Credential, len(limits))
	for i, l := range limits {
		creds[i] = Credential{ID: string(rune('a' + i)), Secret: "secret", Limit: l}
	}
	return NewPool(creds)
}

func TestPoolCheckout(t *testing.T) {
	t.Run("least used first with config order ties", func(t *testing.T) {
		p := newTestPool(3, 3)

		ids := make([]string, 0, 4)
		for range 4 {
			c, err := p.Checkout()
			require.NoError(t, err)
			p.Commit(c.ID)
			ids = append(ids, c.ID)
		}

		assert.Equal(t, []string{"a", "b", "a", "b"}, ids)
	})

	t.Run("refuses once exhausted", func(t *testing.T) {
		p := newTestPool(1)

		c, err := p.Checkout()
		require.NoError(t, err)
		assert.Equal(t, 0, c.Used)

		// a reserved unit already blocks further checkouts
		_, err = p.Checkout()
		assert.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 0, p.Available())
		assert.Equal(t, 0, p.ExhaustedCount())

		p.Commit(c.ID)
		_, err = p.Checkout()
		assert.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 1, p.ExhaustedCount())
	})

	t.Run("respects exclusions", func(t *testing.T) {
		p := newTestPool(5, 5)

		c, err := p.Checkout("a")
		require.NoError(t, err)
		assert.Equal(t, "b", c.ID)

		_, err = p.Checkout("a", "b")
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("disabled credentials leave rotation", func(t *testing.T) {
		p := newTestPool(5, 5)
		p.Disable("a")

		for range 3 {
			c, err := p.Checkout()
			require.NoError(t, err)
			assert.Equal(t, "b", c.ID)
		}
		assert.Equal(t, 2, p.Available())
		assert.Equal(t, 1, p.ExhaustedCount())
	})

	t.Run("unknown ids are ignored", func(t *testing.T) {
		p := newTestPool(1)
		p.Commit("missing")
		p.ReleaseWithoutUse("missing")
		p.Disable("missing")
		assert.Equal(t, 1, p.Available())
	})
}

func TestPoolRelease(t *testing.T) {
	p := newTestPool(2)

	c, err := p.Checkout()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Reserved())
	assert.Equal(t, 1, p.Available())

	p.ReleaseWithoutUse(c.ID)
	assert.Equal(t, 0, p.Reserved())
	assert.Equal(t, 2, p.Available())

	// a committed unit cannot be released
	c, err = p.Checkout()
	require.NoError(t, err)
	p.Commit(c.ID)
	p.ReleaseWithoutUse(c.ID)
	assert.Equal(t, 1, p.Available())

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Usage{ID: "a", Limit: 2, Used: 1}, snap[0])
}

func TestPoolHeadroom(t *testing.T) {
	p := newTestPool(1, 2)

	c, err := p.Checkout("b")
	require.NoError(t, err)
	assert.Equal(t, Headroom{Untried: 0, Reserved: 1, Available: 2}, p.Headroom("b"))

	p.ReleaseWithoutUse(c.ID)
	assert.Equal(t, Headroom{Untried: 1, Reserved: 0, Available: 3}, p.Headroom("b"))
	assert.Equal(t, Headroom{Untried: 3, Reserved: 0, Available: 3}, p.Headroom())

	p.Disable("b")
	assert.Equal(t, Headroom{Untried: 0, Reserved: 0, Available: 1}, p.Headroom("a"))
}

func TestPoolConcurrentCheckout(t *testing.T) {
	const quota = 1000
	p := newTestPool(quota)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, err := p.Checkout()
				if err != nil {
					return
				}
				granted.Add(1)
				p.Commit(c.ID)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, quota, granted.Load())
	for _, u := range p.Snapshot() {
		assert.LessOrEqual(t, u.Used, u.Limit)
	}
}

func TestNewPoolDeduplicates(t *testing.T) {
	p := NewPool([]Credential{
		{ID: "a", Secret: "one", Limit: 1},
		{ID: "a", Secret: "two", Limit: 5},
	})
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 1, p.Available())
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{name: "single pair", input: "id1=secret1", want: []string{"id1"}},
		{name: "multiple pairs", input: "id1=secret1,id2=secret2", want: []string{"id1", "id2"}},
		{name: "whitespace and trailing comma", input: " id1 = secret1 , id2=secret2, ", want: []string{"id1", "id2"}},
		{name: "empty", input: "  ", wantErr: shared.ErrMissingCredentials},
		{name: "only separators", input: ",,", wantErr: shared.ErrMissingCredentials},
		{name: "missing secret", input: "id1=", wantErr: shared.ErrInvalidCredentials},
		{name: "missing equals", input: "id1secret1", wantErr: shared.ErrInvalidCredentials},
		{name: "duplicate id", input: "id1=a,id1=b", wantErr: shared.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ParseCredentials(tt.input, 1000)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			ids := make([]string, len(creds))
			for i, c := range creds {
				ids[i] = c.ID
				assert.Equal(t, 1000, c.Limit)
				assert.NotEmpty(t, c.Secret)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("non-positive limit", func(t *testing.T) {
		_, err := ParseCredentials("a=b", 0)
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})
}

func TestFromConfig(t *testing.T) {
	cfg := shared.SmartyConfig{
		MonthlyQuota: 1000,
		Credentials: []shared.CredentialConfig{
			{AuthID: "cfg1", AuthToken: "t1"},
			{AuthID: "cfg2", AuthToken: "t2", Quota: 25},
		},
	}

	creds, err := FromConfig(cfg, "cfg1=ignored,env1=t3")
	require.NoError(t, err)
	require.Len(t, creds, 3)

	assert.Equal(t, "cfg1", creds[0].ID)
	assert.Equal(t, "t1", creds[0].Secret)
	assert.Equal(t, 1000, creds[0].Limit)
	assert.Equal(t, 25, creds[1].Limit)
	assert.Equal(t, "env1", creds[2].ID)

	_, err = FromConfig(shared.SmartyConfig{MonthlyQuota: 1000}, "")
	assert.ErrorIs(t, err, shared.ErrMissingCredentials)

	_, err = FromConfig(shared.SmartyConfig{
		MonthlyQuota: 1000,
		Credentials:  []shared.CredentialConfig{{AuthID: "x"}},
	}, "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
