package classifier

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/noncmra/internal/models"
	tu "github.com/desertthunder/noncmra/internal/testing"
)

func verified(index int, line1 string, cmra, residential bool) models.Outcome {
	return models.Outcome{
		Mailbox:      tu.Mailbox(index, line1),
		Kind:         models.OutcomeVerified,
		Verification: tu.Verified(cmra, residential),
		Attempts:     1,
	}
}

func lines(r *Report) []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Mailbox.Address.Line1
	}
	return out
}

func TestRank(t *testing.T) {
	t.Run("residential before commercial, CMRA dropped", func(t *testing.T) {
		outcomes := []models.Outcome{
			verified(0, "C", true, false),
			verified(1, "B", false, false),
			verified(2, "A", false, true),
		}

		report := Rank(outcomes)

		assert.Equal(t, []string{"A", "B"}, lines(report))
		assert.Equal(t, 1, report.Entries[0].Rank)
		assert.Equal(t, 2, report.Entries[1].Rank)
		assert.Equal(t, 1, report.Diagnostics.CMRA)
		assert.Equal(t, 2, report.Diagnostics.Reported)
		assert.Equal(t, 1, report.Residential())
	})

	t.Run("catalog order within a class", func(t *testing.T) {
		outcomes := []models.Outcome{
			verified(4, "E", false, false),
			verified(1, "B", false, true),
			verified(3, "D", false, true),
			verified(0, "A", false, false),
		}

		assert.Equal(t, []string{"B", "D", "A", "E"}, lines(Rank(outcomes)))
	})

	t.Run("duplicates collapse onto lowest index", func(t *testing.T) {
		outcomes := []models.Outcome{
			verified(5, "1 Main St", false, true),
			verified(2, "1 MAIN ST.", false, true),
			verified(3, "2 Main St", false, false),
		}

		report := Rank(outcomes)

		require.Len(t, report.Entries, 2)
		assert.Equal(t, 2, report.Entries[0].Mailbox.Index)
		assert.Equal(t, 1, report.Diagnostics.Duplicates)

		keys := make(map[string]bool)
		for _, e := range report.Entries {
			key := e.Mailbox.Address.Key()
			assert.False(t, keys[key], "duplicate key %s", key)
			keys[key] = true
		}
	})

	t.Run("failed and skipped are listed", func(t *testing.T) {
		outcomes := []models.Outcome{
			verified(0, "A", false, false),
			{Mailbox: tu.Mailbox(1, "B"), Kind: models.OutcomeRejected, Reason: "no match"},
			{Mailbox: tu.Mailbox(2, "C"), Kind: models.OutcomeFailed, Cause: models.CauseQuotaExceeded},
			{Mailbox: tu.Mailbox(3, "D"), Kind: models.OutcomeFailed, Cause: models.CauseProtocolError},
			{Mailbox: tu.Mailbox(4, "E"), Kind: models.OutcomeFailed, Cause: models.CauseNetworkError},
			{Mailbox: tu.Mailbox(5, "F"), Kind: models.OutcomeSkipped, Reason: "credentials exhausted"},
		}

		report := Rank(outcomes)
		d := report.Diagnostics

		assert.Len(t, report.Failed, 3)
		assert.Len(t, report.Skipped, 1)
		assert.Equal(t, 6, d.Total)
		assert.Equal(t, 1, d.Rejected)
		assert.Equal(t, 1, d.FailedQuota)
		assert.Equal(t, 1, d.FailedProtocol)
		assert.Equal(t, 1, d.FailedNetwork)
		assert.Equal(t, 3, d.Failed())
		assert.Equal(t, d.Total, d.Reported+d.CMRA+d.Rejected+d.Failed()+d.Skipped)
	})

	t.Run("verified without details is excluded", func(t *testing.T) {
		outcomes := []models.Outcome{{Mailbox: tu.Mailbox(0, "A"), Kind: models.OutcomeVerified}}

		report := Rank(outcomes)

		assert.Empty(t, report.Entries)
		assert.Equal(t, 1, report.Diagnostics.CMRA)
	})

	t.Run("empty input", func(t *testing.T) {
		report := Rank(nil)

		assert.NotNil(t, report.Entries)
		assert.Empty(t, report.Entries)
		assert.Zero(t, report.Diagnostics.Total)
	})
}

func TestRank_Deterministic(t *testing.T) {
	var outcomes []models.Outcome
	for i := range 50 {
		outcomes = append(outcomes, verified(i, string(rune('a'+i%26))+string(rune('a'+i/26)), i%7 == 0, i%3 == 0))
	}

	want := lines(Rank(outcomes))

	r := rand.New(rand.NewPCG(1, 2))
	for range 10 {
		shuffled := append([]models.Outcome(nil), outcomes...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, lines(Rank(shuffled)))
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	outcomes := []models.Outcome{
		verified(1, "B", false, false),
		verified(0, "A", false, true),
	}

	Rank(outcomes)

	assert.Equal(t, "B", outcomes[0].Mailbox.Address.Line1)
}
