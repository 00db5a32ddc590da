package filter

import (
	"testing"
	"time"

	"github.com/antonmedv/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/terrace-buddy/types"
)

func TestNilFilter(t *testing.T) {
	f, err := Compile("")
	require.NoError(t, err)
	assert.Nil(t, f)
	ok, err := f.Match(&types.Notification{Type: types.NotificationWeatherAlert})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", f.String())
}

func TestNotificationFilter(t *testing.T) {
	f, err := Compile(`Type != "weather_alert" || Hour >= 6`)
	require.NoError(t, err)

	night := &types.Notification{
		UserId:    "u1",
		Type:      types.NotificationWeatherAlert,
		CreatedAt: time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
	}
	ok, err := f.Match(night)
	require.NoError(t, err)
	assert.False(t, ok)

	night.Type = types.NotificationCommunityApproved
	ok, err = f.Match(night)
	require.NoError(t, err)
	assert.True(t, ok)

	day := &types.Notification{
		Type:      types.NotificationWeatherAlert,
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	ok, err = f.Match(day)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(`Type ==`)
	assert.Error(t, err)
	_, err = Compile(`Unknown == "x"`)
	assert.Error(t, err)
	// not a boolean
	_, err = Compile(`Title`)
	assert.Error(t, err)
}

func TestEnv(t *testing.T) {
	n := &types.Notification{
		UserId:      "u1",
		Type:        types.NotificationCommunityJoinRequest,
		Title:       "Join request",
		RelatedId:   "c1",
		RelatedType: "community",
		CreatedAt:   time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC),
	}
	env := NewEnv(n)
	res, err := expr.Eval(`RelatedType == "community" && UserId == "u1" && Hour == 17`, env)
	require.NoError(t, err)
	assert.Equal(t, true, res)
}
