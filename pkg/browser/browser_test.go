package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		code string
	}{
		{name: "bare host", in: "example.com", want: "https://example.com"},
		{name: "http kept", in: "http://example.com/a?b=c", want: "http://example.com/a?b=c"},
		{name: "file rejected", in: "file:///etc/passwd", code: ErrCodeValidation},
		{name: "empty rejected", in: "  ", code: ErrCodeValidation},
		{name: "javascript rejected", in: "javascript://alert(1)", code: ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			var be *Error
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.code, be.Code)
		})
	}
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, DefaultSearchEngine+"go+rod", SearchURL("", " go rod "))
	assert.Equal(t, "https://s.test/?q=a%26b", SearchURL("https://s.test/?q=", "a&b"))
}

func TestRodRequiresLaunch(t *testing.T) {
	r := NewRod(Config{Headless: true})
	assert.False(t, r.Running())

	_, err := r.Navigate(context.Background(), "example.com")
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ErrCodeNotLaunched, be.Code)

	err = r.Click(context.Background(), "#go")
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ErrCodeNotLaunched, be.Code)

	assert.NoError(t, r.Close())
}
