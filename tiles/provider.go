package tiles

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Provider fetches the raster image for a tile.
type Provider interface {
	GetTile(ctx context.Context, key Key) (image.Image, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, key Key) (image.Image, error)

func (f ProviderFunc) GetTile(ctx context.Context, key Key) (image.Image, error) {
	return f(ctx, key)
}
