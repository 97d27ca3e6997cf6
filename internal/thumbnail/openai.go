package thumbnail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ImagesAPI is the subset of the OpenAI SDK used here. *openai.ImageService
// satisfies it.
type ImagesAPI interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// OpenAIImages generates images with the OpenAI Images API.
type OpenAIImages struct {
	api   ImagesAPI
	model openai.ImageModel
}

// NewOpenAIImages wraps api. An empty model uses DALL·E 3.
func NewOpenAIImages(api ImagesAPI, model string) *OpenAIImages {
	m := openai.ImageModel(model)
	if model == "" {
		m = openai.ImageModelDallE3
	}
	return &OpenAIImages{api: api, model: m}
}

// NewOpenAIImagesFromAPIKey builds the SDK client for apiKey.
func NewOpenAIImagesFromAPIKey(apiKey, model string) (*OpenAIImages, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIImages(&c.Images, model), nil
}

// Generate returns the PNG bytes of one 1024x1024 image.
func (o *OpenAIImages) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := o.api.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          o.model,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai images: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("openai images: empty response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}
