//go:build !onnx

package onnx

import (
	"context"
	"errors"
)

// Provider is unavailable without the onnx build tag.
type Provider struct{}

// New reports that ONNX support was not compiled in.
func New(Config) (*Provider, error) {
	return nil, errors.New("onnx: built without onnx support (rebuild with -tags onnx)")
}

func (p *Provider) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("onnx: built without onnx support")
}

func (p *Provider) Dimensions() int { return 0 }

func (p *Provider) Close() error { return nil }
