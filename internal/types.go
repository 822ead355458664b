package internal

import "context"

type Configurer interface {
	Configure(envs map[string]string) error
}

type Opener interface {
	Open(ctx context.Context) error
	Closer
}

type Closer interface {
	Close(ctx context.Context) error
}

type Clearer interface {
	Clear(ctx context.Context) error
}

// Notifier allows a component to be told when something it depends on
// has been reloaded (e.g. templates changed on disk)
type Notifier interface {
	OnReload(fx func(ctx context.Context))
}
