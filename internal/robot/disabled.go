package robot

import "context"

// DisabledLink is a no-op Link used when no controller is attached (for
// --disable-robot and dev mode). It always reads the zero State, so the
// pipeline never publishes.
type DisabledLink struct{}

func NewDisabledLink() *DisabledLink { return &DisabledLink{} }

func (*DisabledLink) ReadState(ctx context.Context) (State, error) { return State{}, ctx.Err() }

func (*DisabledLink) Publish(context.Context, Pose) error { return nil }

func (*DisabledLink) Close() error { return nil }
