package rtc

import "context"

// This package is the seam to the external real-time transport SDK. The
// service never touches media itself; it creates clients, joins channels named
// after call ids, and reacts to remote-participant events.

// RemoteUser identifies another participant in the channel.
type RemoteUser struct {
	ID string
}

// Track is a locally captured media source. Stop halts capture; Close releases
// the device. Both must be safe to call once each during teardown.
type Track interface {
	Stop()
	Close()
}

// Client is one connection to a signaling channel.
//
// Event handlers must be registered before Join; the SDK may deliver events as
// soon as the join completes.
type Client interface {
	OnRemotePublished(fn func(RemoteUser))
	OnRemoteLeft(fn func(RemoteUser))

	Join(ctx context.Context, appID, channel, token, identity string) error
	Publish(ctx context.Context, track Track) error

	// SubscribeRemote attaches to a remote participant's published audio so it
	// plays locally.
	SubscribeRemote(ctx context.Context, user RemoteUser) error

	Leave(ctx context.Context) error
}

// Provider constructs clients and local capture tracks.
type Provider interface {
	CreateClient() Client
	CreateMicrophoneTrack(ctx context.Context) (Track, error)
}
