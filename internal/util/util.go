package util

import (
	"time"
)

// MustString unwraps calls like os.UserHomeDir that only fail when the
// environment is unusable.
func MustString(fn func() (string, error)) string {
	s, err := fn()
	if err != nil {
		panic(err)
	}
	return s
}

// TimeToStr renders a timestamp the way the API reports them, UTC with
// second precision.
func TimeToStr(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func TimeToStrPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := TimeToStr(*t)
	return &s
}
