package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inovacc/reposync/internal/model"
)

func TestDecide(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	prior := &model.RepositoryDescriptor{FullName: "alice/tool", PushedAt: t0}

	tests := []struct {
		name        string
		prior       *model.RepositoryDescriptor
		pushedAt    time.Time
		localExists bool
		want        Decision
		wantErr     error
	}{
		{"missing checkout without metadata", nil, t0, false, Clone, nil},
		{"missing checkout with older remote", prior, t0.Add(-time.Hour), false, Clone, nil},
		{"missing checkout with newer remote", prior, t0.Add(time.Hour), false, Clone, nil},
		{"newer remote", prior, t0.Add(time.Second), true, Pull, nil},
		{"equal timestamps", prior, t0, true, Skip, nil},
		{"older remote", prior, t0.Add(-time.Second), true, Skip, nil},
		{"existing checkout without metadata", nil, t0.Add(time.Hour), true, Skip, ErrUnknownMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := model.RepositoryDescriptor{FullName: "alice/tool", PushedAt: tt.pushedAt}

			got, err := Decide(tt.prior, remote, tt.localExists)
			assert.Equal(t, tt.want, got)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecide_MissingCheckoutAlwaysClones(t *testing.T) {
	base := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := -50; i <= 50; i++ {
		remote := model.RepositoryDescriptor{PushedAt: base.Add(time.Duration(i) * time.Minute)}

		for _, prior := range []*model.RepositoryDescriptor{nil, {PushedAt: base}} {
			got, err := Decide(prior, remote, false)
			assert.NoError(t, err)
			assert.Equal(t, Clone, got)
		}
	}
}

func TestDecide_PullIffStrictlyNewer(t *testing.T) {
	base := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	prior := &model.RepositoryDescriptor{PushedAt: base}

	for i := -50; i <= 50; i++ {
		remote := model.RepositoryDescriptor{PushedAt: base.Add(time.Duration(i) * time.Second)}

		got, err := Decide(prior, remote, true)
		assert.NoError(t, err)

		if i > 0 {
			assert.Equal(t, Pull, got, "offset %d", i)
		} else {
			assert.Equal(t, Skip, got, "offset %d", i)
		}
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "clone", Clone.String())
	assert.Equal(t, "pull", Pull.String())
	assert.Equal(t, "skip", Skip.String())
}

func TestAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, start.Add(10*time.Second), advance(start, 10*time.Second, start.Add(time.Second)))

	// late by three and a half intervals: missed ticks are skipped
	got := advance(start, 10*time.Second, start.Add(35*time.Second))
	assert.Equal(t, start.Add(40*time.Second), got)

	// exactly on a tick moves past it
	got = advance(start, 10*time.Second, start.Add(20*time.Second))
	assert.Equal(t, start.Add(30*time.Second), got)

	// a zero deadline lands one interval or less after now
	got = advance(time.Time{}, 10*time.Second, start)
	assert.True(t, got.After(start))
	assert.False(t, got.After(start.Add(10*time.Second)))
}
