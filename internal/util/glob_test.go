package util_test

import (
	"testing"
	"time"

	"github.com/fleetver/fleetver/internal/util"
	"github.com/stretchr/testify/require"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"/etc/app.conf", "/etc/app.conf", true},
		{"/etc/*.conf", "/etc/app.conf", true},
		{"/etc/*.conf", "/etc/app.yaml", false},
		// * crosses separators, fnmatch-style.
		{"/opt/*/recipe.xml", "/opt/line1/sub/recipe.xml", true},
		{"1.0.*", "1.0.3", true},
		{"1.0.*", "2.0.3", false},
		{"C:\\conf\\*.ini", "C:/conf/app.ini", true},
		{"/etc/app.conf", "C:\\etc\\app.conf", false},
		{"[", "[", true},
		{"[", "x", false},
		{"", "", true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, util.MatchGlob(tt.pattern, tt.name),
			"pattern %q name %q", tt.pattern, tt.name)
	}
}

func TestTimeToStr(t *testing.T) {
	in := time.Date(2026, 3, 1, 12, 30, 45, 987654321, time.FixedZone("UTC+2", 2*3600))
	require.Equal(t, "2026-03-01T10:30:45Z", util.TimeToStr(in))
	require.Nil(t, util.TimeToStrPtr(nil))
	require.Equal(t, "2026-03-01T10:30:45Z", *util.TimeToStrPtr(&in))
}
