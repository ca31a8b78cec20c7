package passwordgrant

import "context"

// Profile is the user profile handed to verification. The strategy never
// inspects or modifies it.
type Profile map[string]any

// ProfileLoader fetches a profile for a freshly issued access token. An error
// aborts the attempt with an OutcomeError carrying that error unchanged.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, accessToken string) (Profile, error)
}

// ProfileLoaderFunc adapts a function to ProfileLoader.
type ProfileLoaderFunc func(ctx context.Context, accessToken string) (Profile, error)

func (f ProfileLoaderFunc) LoadProfile(ctx context.Context, accessToken string) (Profile, error) {
	return f(ctx, accessToken)
}

// NoProfile is the default loader. It performs no I/O and returns an empty
// profile.
var NoProfile ProfileLoader = ProfileLoaderFunc(func(context.Context, string) (Profile, error) {
	return Profile{}, nil
})
