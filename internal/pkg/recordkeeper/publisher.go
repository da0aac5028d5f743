package recordkeeper

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close()
}

type ValkeyPublisher struct {
	client valkey.Client
}

func NewValkeyPublisher(address string) (*ValkeyPublisher, error) {
	//nolint:exhaustruct
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &ValkeyPublisher{client: client}, nil
}

func (p *ValkeyPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	cmd := p.client.B().Publish().Channel(channel).Message(valkey.BinaryString(payload)).Build()

	err := p.client.Do(ctx, cmd).Error()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	return nil
}

func (p *ValkeyPublisher) Close() {
	p.client.Close()
}
